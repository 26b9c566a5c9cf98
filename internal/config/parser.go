// Package config decodes and validates recipe documents and tool settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	dcverrors "github.com/alexisbeaulieu97/dcvprov/pkg/errors"
)

var (
	yamlLineRegex = regexp.MustCompile(`line (\d+)`)

	errEmptyDocument = errors.New("document is empty")
)

// LoadRecipe reads a recipe document from disk, validates it and returns it.
func LoadRecipe(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dcverrors.NewParseError(path, 0, err)
	}
	return ParseRecipe(data, path)
}

// ParseRecipe decodes and validates a recipe document. Unknown fields are
// rejected. name is used in error messages.
func ParseRecipe(data []byte, name string) (*Recipe, error) {
	var r Recipe
	if err := decodeStrict(data, &r); err != nil {
		return nil, dcverrors.NewParseError(name, extractLine(err), err)
	}

	if err := ValidateRecipe(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyDocument
		}
		return err
	}
	return nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
