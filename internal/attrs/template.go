package attrs

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// FuncMap returns template helpers bound to a snapshot:
//
//	attr "key"          value of key, error when missing
//	attrOr "key" "def"  value of key or def
//	hasAttr "key"       whether key is set
func FuncMap(a NodeAttributes) template.FuncMap {
	return template.FuncMap{
		"attr": func(key string) (string, error) {
			v, ok := a.Lookup(key)
			if !ok {
				return "", fmt.Errorf("node attribute %q is not set", key)
			}
			return v, nil
		},
		"attrOr": func(key, def string) string {
			if v, ok := a.Lookup(key); ok && v != "" {
				return v
			}
			return def
		},
		"hasAttr": func(key string) bool {
			_, ok := a.Lookup(key)
			return ok
		},
	}
}

// Expand renders a parameter value that may reference attributes. Values
// without template actions are returned unchanged.
func Expand(value string, a NodeAttributes) (string, error) {
	if !strings.Contains(value, "{{") {
		return value, nil
	}

	tmpl, err := template.New("param").Option("missingkey=error").Funcs(FuncMap(a)).Parse(value)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", value, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, a); err != nil {
		return "", fmt.Errorf("expand %q: %w", value, err)
	}
	return buf.String(), nil
}
