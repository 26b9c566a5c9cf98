package attrs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	dcverrors "github.com/alexisbeaulieu97/dcvprov/pkg/errors"
)

// DefaultOSReleasePath is where the distribution identity is read from.
const DefaultOSReleasePath = "/etc/os-release"

// Builder accumulates attributes from several sources. Later writes win.
// The Builder is not safe for concurrent use; the snapshot it builds is.
type Builder struct {
	values map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{values: make(map[string]string)}
}

// Set stores a single attribute. Keys are trimmed; empty keys are ignored.
func (b *Builder) Set(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	b.values[key] = value
	return b
}

// SetGraphics records the explicit GPU acceleration choice.
func (b *Builder) SetGraphics(enabled bool) *Builder {
	return b.Set(KeyGraphicsInstance, strconv.FormatBool(enabled))
}

// Merge copies every entry of values.
func (b *Builder) Merge(values map[string]string) *Builder {
	for k, v := range values {
		b.Set(k, v)
	}
	return b
}

// ParseAssignments applies "key=value" pairs as given on the command line.
func (b *Builder) ParseAssignments(pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("invalid attribute assignment %q: expected key=value", pair)
		}
		if err := checkGraphics(key, value); err != nil {
			return dcverrors.NewParseError("--set", 0, err)
		}
		b.Set(key, value)
	}
	return nil
}

// LoadOSRelease reads the distribution id and version from an os-release
// file. A missing file is not an error.
func (b *Builder) LoadOSRelease(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return dcverrors.NewParseError(path, 0, err)
	}

	section := cfg.Section(ini.DefaultSection)
	if id := strings.ToLower(strings.TrimSpace(section.Key("ID").String())); id != "" {
		b.Set(KeyPlatform, id)
	}
	if version := strings.TrimSpace(section.Key("VERSION_ID").String()); version != "" {
		b.Set(KeyPlatformVersion, version)
	}
	return nil
}

// LoadFile reads a YAML or TOML attribute document. Nested tables are
// flattened with dots, so {dcv: {version: x}} becomes "dcv.version".
// YAML scalars keep their literal text; TOML floats must be quoted.
func (b *Builder) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return dcverrors.NewParseError(path, 0, err)
	}

	flat := map[string]string{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		raw := map[string]any{}
		if _, err := toml.Decode(string(data), &raw); err != nil {
			line := 0
			var perr toml.ParseError
			if errors.As(err, &perr) {
				line = perr.Position.Line
			}
			return dcverrors.NewParseError(path, line, err)
		}
		if err := flatten("", raw, flat); err != nil {
			return dcverrors.NewParseError(path, 0, err)
		}
	case ".yaml", ".yml", "":
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return dcverrors.NewParseError(path, 0, err)
		}
		if len(doc.Content) > 0 {
			root := doc.Content[0]
			if root.Kind != yaml.MappingNode {
				return dcverrors.NewParseError(path, root.Line, fmt.Errorf("attribute document must be a mapping"))
			}
			if err := flattenNode("", root, flat); err != nil {
				var nerr *nodeError
				if errors.As(err, &nerr) {
					return dcverrors.NewParseError(path, nerr.line, nerr.err)
				}
				return dcverrors.NewParseError(path, 0, err)
			}
		}
	default:
		return dcverrors.NewParseError(path, 0, fmt.Errorf("unsupported attribute file extension %q", filepath.Ext(path)))
	}

	if v, ok := flat[KeyGraphicsInstance]; ok {
		if err := checkGraphics(KeyGraphicsInstance, v); err != nil {
			return dcverrors.NewParseError(path, 0, err)
		}
	}
	b.Merge(flat)
	return nil
}

// Build returns the immutable snapshot.
func (b *Builder) Build() NodeAttributes {
	a := NodeAttributes{extra: make(map[string]string)}
	for k, v := range b.values {
		switch k {
		case KeyPlatform:
			a.platform = strings.ToLower(v)
		case KeyPlatformVersion:
			a.platformVersion = v
		case KeyRole:
			a.role = v
		case KeyInstanceType:
			a.instanceType = v
		case KeyGraphicsInstance:
			// LoadFile and ParseAssignments reject non-boolean input.
			a.graphics, _ = strconv.ParseBool(v)
		default:
			a.extra[k] = v
		}
	}
	return a
}

// checkGraphics rejects values Build could not read as a boolean.
func checkGraphics(key, value string) error {
	if strings.TrimSpace(key) != KeyGraphicsInstance {
		return nil
	}
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("%s: %q is not a boolean (use true or false)", KeyGraphicsInstance, value)
	}
	return nil
}

type nodeError struct {
	line int
	err  error
}

func (e *nodeError) Error() string { return e.err.Error() }

func (e *nodeError) Unwrap() error { return e.err }

func flattenNode(prefix string, n *yaml.Node, out map[string]string) error {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if err := flattenNode(join(prefix, n.Content[i].Value), n.Content[i+1], out); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return &nodeError{line: item.Line, err: fmt.Errorf("%s: list items must be scalars", prefix)}
			}
			parts = append(parts, item.Value)
		}
		out[prefix] = strings.Join(parts, ",")
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			out[prefix] = ""
			return nil
		}
		out[prefix] = n.Value
	default:
		return &nodeError{line: n.Line, err: fmt.Errorf("%s: unsupported value", prefix)}
	}
	return nil
}

// flatten walks a decoded TOML table. Floats are refused because their
// source text cannot be recovered ("2019.10" would read back as "2019.1").
func flatten(prefix string, value any, out map[string]string) error {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := flatten(join(prefix, k), v[k], out); err != nil {
				return err
			}
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarText(prefix, item)
			if err != nil {
				return err
			}
			parts = append(parts, s)
		}
		out[prefix] = strings.Join(parts, ",")
	default:
		s, err := scalarText(prefix, v)
		if err != nil {
			return err
		}
		out[prefix] = s
	}
	return nil
}

func scalarText(key string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float32, float64:
		return "", fmt.Errorf("%s: floating point value %v is ambiguous, quote it as a string", key, v)
	case map[string]any, []any:
		return "", fmt.Errorf("%s: nested value not allowed here", key)
	default:
		return fmt.Sprint(v), nil
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
