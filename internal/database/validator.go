package database

import (
	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/xerr"
)

// Validator is the pluggable XML schema validator named in §1 as
// deliberately out of scope ("a pluggable validator producing a pass/fail
// outcome and diagnostics"): Xantippe depends on this interface only and
// ships no implementation. Without one installed, PutDocument's validate
// step is a silent no-op regardless of a collection's effective mode.
type Validator interface {
	Validate(mediaType catalog.MediaType, data []byte) (ok bool, diagnostics []string, err error)
}

// SetValidator installs v as the database's schema validator. Pass nil to
// remove it.
func (db *Database) SetValidator(v Validator) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.validator = v
}

func (db *Database) getValidator() Validator {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.validator
}

// validateContent runs the installed Validator, if any, according to mode
// (§4.3 validation policy): OFF never validates, ON always validates
// mediaType content, AUTO validates only XML content. A validator-reported
// failure surfaces as ValidationFailed carrying its diagnostics (§7).
func (db *Database) validateContent(mode catalog.ValidationMode, mediaType catalog.MediaType, data []byte) error {
	v := db.getValidator()
	if v == nil || mode == catalog.ValidationOff {
		return nil
	}
	if mode == catalog.ValidationAuto && mediaType != catalog.MediaXML {
		return nil
	}
	ok, diags, err := v.Validate(mediaType, data)
	if err != nil {
		return xerr.Wrap(xerr.Io, "schema validation", err)
	}
	if !ok {
		return xerr.New(xerr.ValidationFailed, "document failed schema validation").WithDiagnostics(diags)
	}
	return nil
}
