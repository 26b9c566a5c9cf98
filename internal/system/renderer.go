package system

import (
	"bytes"
	"fmt"
	"io/fs"
	"text/template"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
)

// TemplateRenderer renders text/template files from a filesystem. The node
// attributes are the template data and the attrs helpers are available.
type TemplateRenderer struct {
	fsys fs.FS
}

// NewTemplateRenderer returns a renderer reading templates from fsys.
func NewTemplateRenderer(fsys fs.FS) *TemplateRenderer {
	return &TemplateRenderer{fsys: fsys}
}

// Render implements Renderer.
func (r *TemplateRenderer) Render(templateID string, a attrs.NodeAttributes) ([]byte, error) {
	raw, err := fs.ReadFile(r.fsys, templateID)
	if err != nil {
		return nil, fmt.Errorf("read template %q: %w", templateID, err)
	}

	tmpl, err := template.New(templateID).
		Option("missingkey=error").
		Funcs(attrs.FuncMap(a)).
		Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", templateID, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, a); err != nil {
		return nil, fmt.Errorf("render template %q: %w", templateID, err)
	}
	return buf.Bytes(), nil
}

// LayeredFS resolves a name against each filesystem in order.
type LayeredFS []fs.FS

// Open implements fs.FS.
func (l LayeredFS) Open(name string) (fs.File, error) {
	var firstErr error
	for _, fsys := range l {
		if fsys == nil {
			continue
		}
		f, err := fsys.Open(name)
		if err == nil {
			return f, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return nil, firstErr
}
