package templates

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer(t *testing.T) {
	fsys := fstest.MapFS{
		"card.html": {Data: []byte(`{{define "card"}}<b>{{.Name}}</b>{{template "tag" .Tag}}{{end}}{{define "tag"}}<i>{{.}}</i>{{end}}`)},
	}
	r, err := New(fsys, "*.html")
	require.NoError(t, err)

	out, err := r.Render("card", map[string]string{"Name": "<Artium>", "Tag": "museo"})
	require.NoError(t, err)
	assert.Equal(t, `<b>&lt;Artium&gt;</b><i>museo</i>`, out)

	_, err = r.Render("missing", nil)
	assert.Error(t, err)

	_, err = New(fsys, "*.tmpl")
	assert.Error(t, err)
}

func TestNewFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "popup.html"), []byte(`{{define "popup"}}<h6>{{.}}</h6>{{end}}`), 0o644))

	r, err := NewFromDir(dir)
	require.NoError(t, err)
	out, err := r.Render("popup", "Artium")
	require.NoError(t, err)
	assert.Equal(t, "<h6>Artium</h6>", out)
}
