package web

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublic(t *testing.T) {
	for _, name := range []string{"portal.html", "style.css", "portal.js"} {
		data, err := fs.ReadFile(Public(), name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}

	html, err := fs.ReadFile(Public(), "portal.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), `action="/save"`)
	assert.Contains(t, string(html), `src="/portal.js"`)
}

func TestOpen(t *testing.T) {
	_, err := fs.Stat(Open(""), "portal.html")
	assert.NoError(t, err, "empty dir selects embedded assets")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "portal.html"), []byte("custom"), 0o600))
	data, err := fs.ReadFile(Open(dir), "portal.html")
	require.NoError(t, err)
	assert.Equal(t, "custom", string(data))
}
