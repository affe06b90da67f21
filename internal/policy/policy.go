// Package policy resolves the inherited validation, compression, and
// index-definition settings of a collection (spec §4.3): each policy is a
// three-valued enum including INHERIT, resolved by walking the parent
// chain until a concrete value is found; index definitions inherit
// additively across the whole ancestor chain.
//
// Grounded on the teacher's internal/graph's parent-pointer traversal
// style (walking Node.ParentID chains for path resolution), generalized
// here from path lookup to policy lookup over the same Collection tree.
package policy

import (
	"fmt"

	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/xerr"
)

// Resolver resolves effective policy for collections in cat.
type Resolver struct {
	cat *catalog.Catalog
}

// NewResolver creates a Resolver over cat.
func NewResolver(cat *catalog.Catalog) *Resolver {
	return &Resolver{cat: cat}
}

// GetExplicitValidation returns col's own stored validation mode, which may
// be INHERIT.
func (r *Resolver) GetExplicitValidation(col *catalog.Collection) catalog.ValidationMode {
	return col.ExplicitValidation
}

// GetExplicitCompression returns col's own stored compression mode, which
// may be INHERIT.
func (r *Resolver) GetExplicitCompression(col *catalog.Collection) catalog.CompressionMode {
	return col.ExplicitCompression
}

// GetEffectiveValidation walks the parent chain from col until a
// non-INHERIT validation mode is found. The root always carries a
// concrete value (§3 invariant), so this always terminates.
func (r *Resolver) GetEffectiveValidation(col *catalog.Collection) (catalog.ValidationMode, error) {
	var mode catalog.ValidationMode
	err := r.cat.WithCollectionChain(col, func(chain []*catalog.Collection) error {
		for _, c := range chain {
			if c.ExplicitValidation != catalog.ValidationInherit {
				mode = c.ExplicitValidation
				return nil
			}
		}
		return xerr.New(xerr.InvalidState, "root collection has no concrete validation mode")
	})
	return mode, err
}

// GetEffectiveCompression walks the parent chain from col until a
// non-INHERIT compression mode is found.
func (r *Resolver) GetEffectiveCompression(col *catalog.Collection) (catalog.CompressionMode, error) {
	var mode catalog.CompressionMode
	err := r.cat.WithCollectionChain(col, func(chain []*catalog.Collection) error {
		for _, c := range chain {
			if c.ExplicitCompression != catalog.CompressionInherit {
				mode = c.ExplicitCompression
				return nil
			}
		}
		return xerr.New(xerr.InvalidState, "root collection has no concrete compression mode")
	})
	return mode, err
}

// EffectiveIndexDefs returns the union of col's own index definitions and
// those of every ancestor, keyed by name. The nearest definition of a
// given name (col itself, then its parent, and so on) wins, though in
// practice AddIndexDef prevents more than one definition of a name from
// ever existing along a single chain.
func (r *Resolver) EffectiveIndexDefs(col *catalog.Collection) ([]catalog.IndexDef, error) {
	byName := make(map[string]catalog.IndexDef)
	err := r.cat.WithCollectionChain(col, func(chain []*catalog.Collection) error {
		for _, c := range chain {
			for _, def := range c.IndexDefs {
				if _, exists := byName[def.Name]; !exists {
					byName[def.Name] = def
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]catalog.IndexDef, 0, len(byName))
	for _, def := range byName {
		out = append(out, def)
	}
	return out, nil
}

// AddIndexDef adds a new index definition to col, rejecting a name already
// defined at col itself or inherited from any ancestor (§4.3: "redefining
// an inherited name at a descendant is rejected with NameInUse on add").
func (r *Resolver) AddIndexDef(col *catalog.Collection, def catalog.IndexDef) error {
	effective, err := r.EffectiveIndexDefs(col)
	if err != nil {
		return err
	}
	for _, existing := range effective {
		if existing.Name == def.Name {
			return xerr.New(xerr.NameInUse, fmt.Sprintf("index %q already defined or inherited", def.Name))
		}
	}
	return r.cat.MutateCollection(col.ID, func(c *catalog.Collection) error {
		c.IndexDefs = append(c.IndexDefs, def)
		return nil
	})
}
