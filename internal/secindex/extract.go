package secindex

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ostigter/xantippe/internal/catalog"
)

// ExtractKey evaluates def's xpath against an XML document's bytes and
// coerces the matched element's text to def's declared type (§4.4). It
// supports the subset of XPath an index definition actually needs: an
// absolute path of element names, each either a literal local name or "*".
// A document that isn't XML, an xpath matching nothing, or a value that
// fails coercion is not an error: ok is false. For a non-XML media type
// diag is empty; otherwise diag carries a human-readable reason suitable
// for a startup/write-path diagnostic.
func ExtractKey(def catalog.IndexDef, mediaType catalog.MediaType, data []byte) (value catalog.TypedValue, ok bool, diag string) {
	if mediaType != catalog.MediaXML {
		return catalog.TypedValue{}, false, ""
	}
	segs := splitXPath(def.XPath)
	if len(segs) == 0 {
		return catalog.TypedValue{}, false, fmt.Sprintf("index %q: empty xpath", def.Name)
	}
	text, found := findElementText(data, segs)
	if !found {
		return catalog.TypedValue{}, false, fmt.Sprintf("index %q: xpath %q matched no element", def.Name, def.XPath)
	}
	v, ok := coerce(def.Type, text)
	if !ok {
		return catalog.TypedValue{}, false, fmt.Sprintf("index %q: value %q does not coerce to %s", def.Name, text, def.Type)
	}
	return v, true, ""
}

func splitXPath(xpath string) []string {
	xpath = strings.TrimPrefix(xpath, "/")
	if xpath == "" {
		return nil
	}
	return strings.Split(xpath, "/")
}

// findElementText walks data depth-first looking for the first element
// whose path from the document root matches segs, returning its trimmed
// character content.
func findElementText(data []byte, segs []string) (string, bool) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var stack []string
	var capturing bool
	var buf strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			if !capturing && matchesPath(stack, segs) {
				capturing = true
				buf.Reset()
			}
		case xml.CharData:
			if capturing {
				buf.Write(t)
			}
		case xml.EndElement:
			if capturing && len(stack) == len(segs) {
				return strings.TrimSpace(buf.String()), true
			}
			stack = stack[:len(stack)-1]
		}
	}
}

func matchesPath(stack, segs []string) bool {
	if len(stack) != len(segs) {
		return false
	}
	for i, s := range segs {
		if s != "*" && s != stack[i] {
			return false
		}
	}
	return true
}

func coerce(t catalog.IndexType, text string) (catalog.TypedValue, bool) {
	switch t {
	case catalog.IndexString:
		return catalog.TypedValue{Type: t, Str: text}, true
	case catalog.IndexInt, catalog.IndexLong:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return catalog.TypedValue{}, false
		}
		return catalog.TypedValue{Type: t, Int: n}, true
	case catalog.IndexFloat, catalog.IndexDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return catalog.TypedValue{}, false
		}
		return catalog.TypedValue{Type: t, Float: f}, true
	case catalog.IndexDate:
		ms, ok := parseDate(text)
		if !ok {
			return catalog.TypedValue{}, false
		}
		return catalog.TypedValue{Type: t, DateMs: ms}, true
	default:
		return catalog.TypedValue{}, false
	}
}

func parseDate(text string) (int64, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if tm, err := time.Parse(layout, text); err == nil {
			return tm.UnixMilli(), true
		}
	}
	return 0, false
}
