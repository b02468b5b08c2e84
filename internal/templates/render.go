// Package templates renders named HTML fragments from a template file system.
package templates

import (
	"bytes"
	"html/template"
	"io/fs"
	"os"
)

// Renderer executes parsed HTML fragment templates. It is safe for
// concurrent use.
type Renderer struct {
	templates *template.Template
}

// New parses every file matching pattern in fsys.
func New(fsys fs.FS, pattern string) (*Renderer, error) {
	tmpl, err := parse(fsys, pattern)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// NewFromDir parses the *.html fragments of a directory on disk.
func NewFromDir(dir string) (*Renderer, error) {
	return New(os.DirFS(dir), "*.html")
}

func parse(fsys fs.FS, pattern string) (*template.Template, error) {
	return template.New("").ParseFS(fsys, pattern)
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
