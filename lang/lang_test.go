package lang

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	en, err := Default("")
	require.NoError(t, err)
	assert.Equal(t, "en", en.Language)
	assert.Equal(t, "Only staff members can claim tickets!", en.T("claim_staff_only"))
	assert.Equal(t, "Your ticket has been created: <#123>", en.T("ticket_created", "channel", "123"))

	pt, err := Default("pt")
	require.NoError(t, err)
	assert.Equal(t, "Apenas membros da staff podem assumir tickets!", pt.T("claim_staff_only"))
}

func TestDefault_UnknownLanguageFallsBack(t *testing.T) {
	c, err := Default("xx")
	require.NoError(t, err)
	assert.Equal(t, "en", c.Language)
}

func TestCatalog_T(t *testing.T) {
	c, err := Parse([]byte("en:\n  hello: \"hi {name}, {name}\"\n"), "en")
	require.NoError(t, err)

	assert.Equal(t, "hi bob, bob", c.T("hello", "name", "bob"))
	assert.Equal(t, "hi {name}, {name}", c.T("hello"))
	assert.Equal(t, "{missing}", c.T("missing"))
	assert.Equal(t, "hi {name}, {name}", c.T("hello", "dangling"))
}

func TestLoad_OverridesMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lang.yaml")
	require.NoError(t, os.WriteFile(path, []byte("en:\n  closing: \"Bye!\"\n"), 0o644))

	c, err := Load(path, "en")
	require.NoError(t, err)
	assert.Equal(t, "Bye!", c.T("closing"))
	assert.Equal(t, "Close cancelled!", c.T("close_cancelled"))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("de:\n  a: b\n"), "fr")
	assert.Error(t, err)

	_, err = Parse([]byte("en: just a string\n"), "en")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), "en")
	assert.Error(t, err)
}
