package queryadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseParamsRecognizesRecurse(t *testing.T) {
	assert.True(t, ParseParams(map[string]string{"recurse": "yes"}).Recurse)
	assert.True(t, ParseParams(map[string]string{"recurse": "true"}).Recurse)
	assert.True(t, ParseParams(map[string]string{"recurse": "YES"}).Recurse)
	assert.False(t, ParseParams(map[string]string{"recurse": "no"}).Recurse)
	assert.False(t, ParseParams(nil).Recurse)
	assert.False(t, ParseParams(map[string]string{"other": "yes"}).Recurse)
}

func TestStripFileScheme(t *testing.T) {
	assert.Equal(t, "/a/b.xq", StripFileScheme("file:/a/b.xq"))
	assert.Equal(t, "/a/b.xq", StripFileScheme("/a/b.xq"))
}
