package secindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ostigter/xantippe/internal/catalog"
)

func TestExtractKeyStringMatch(t *testing.T) {
	def := catalog.IndexDef{Name: "DocType", XPath: "/*/Type", Type: catalog.IndexString}
	v, ok, diag := ExtractKey(def, catalog.MediaXML, []byte("<root><Type>Foo</Type></root>"))
	assert.True(t, ok)
	assert.Empty(t, diag)
	assert.Equal(t, catalog.TypedValue{Type: catalog.IndexString, Str: "Foo"}, v)
}

func TestExtractKeyWildcardRootMatchesAnyTag(t *testing.T) {
	def := catalog.IndexDef{Name: "DocType", XPath: "/*/Type", Type: catalog.IndexString}
	v, ok, _ := ExtractKey(def, catalog.MediaXML, []byte("<book><Type>Novel</Type></book>"))
	assert.True(t, ok)
	assert.Equal(t, "Novel", v.Str)
}

func TestExtractKeyLongCoercion(t *testing.T) {
	def := catalog.IndexDef{Name: "DocId", XPath: "/*/Id", Type: catalog.IndexLong}
	v, ok, _ := ExtractKey(def, catalog.MediaXML, []byte("<root><Id>42</Id></root>"))
	assert.True(t, ok)
	assert.Equal(t, int64(42), v.Int)
}

func TestExtractKeyNoMatchProducesDiagnostic(t *testing.T) {
	def := catalog.IndexDef{Name: "DocType", XPath: "/*/Type", Type: catalog.IndexString}
	_, ok, diag := ExtractKey(def, catalog.MediaXML, []byte("<root><Other>x</Other></root>"))
	assert.False(t, ok)
	assert.Contains(t, diag, "matched no element")
}

func TestExtractKeyCoercionFailureProducesDiagnostic(t *testing.T) {
	def := catalog.IndexDef{Name: "DocId", XPath: "/*/Id", Type: catalog.IndexLong}
	_, ok, diag := ExtractKey(def, catalog.MediaXML, []byte("<root><Id>not-a-number</Id></root>"))
	assert.False(t, ok)
	assert.Contains(t, diag, "does not coerce")
}

func TestExtractKeyNonXMLIsSkippedSilently(t *testing.T) {
	def := catalog.IndexDef{Name: "DocType", XPath: "/*/Type", Type: catalog.IndexString}
	_, ok, diag := ExtractKey(def, catalog.MediaBinary, []byte{0x01, 0x02})
	assert.False(t, ok)
	assert.Empty(t, diag, "non-XML media types are not diagnosable, just not indexed")
}
