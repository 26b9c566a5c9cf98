// Package recipe ships the built-in recipes with their templates and
// artifacts, and compiles a recipe into the gate and steps of one run.
package recipe

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/config"
	"github.com/alexisbeaulieu97/dcvprov/internal/gate"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
)

// DefaultName is the recipe applied when none is named.
const DefaultName = "dcv-head-node"

//go:embed recipes/*.yaml
var recipesFS embed.FS

//go:embed templates
var templatesFS embed.FS

//go:embed files
var filesFS embed.FS

// Templates returns the built-in templates, addressed by file name.
func Templates() fs.FS {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Files returns the built-in artifacts used by file_copy steps.
func Files() fs.FS {
	sub, err := fs.Sub(filesFS, "files")
	if err != nil {
		panic(err)
	}
	return sub
}

// BuiltinNames lists the embedded recipes.
func BuiltinNames() []string {
	entries, err := fs.ReadDir(recipesFS, "recipes")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// BuiltinSource returns the YAML document of an embedded recipe.
func BuiltinSource(name string) ([]byte, error) {
	data, err := recipesFS.ReadFile("recipes/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no built-in recipe %q (available: %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return data, nil
}

// Builtin parses an embedded recipe.
func Builtin(name string) (*config.Recipe, error) {
	data, err := BuiltinSource(name)
	if err != nil {
		return nil, err
	}
	return config.ParseRecipe(data, name+".yaml")
}

// Load resolves ref as a built-in recipe name first and as a file path
// otherwise.
func Load(ref string) (*config.Recipe, error) {
	if ref == "" {
		ref = DefaultName
	}
	if _, err := BuiltinSource(ref); err == nil {
		return Builtin(ref)
	}
	if _, err := os.Stat(ref); err != nil {
		return nil, fmt.Errorf("recipe %q is neither a built-in recipe (%s) nor a readable file: %w",
			ref, strings.Join(BuiltinNames(), ", "), err)
	}
	return config.LoadRecipe(ref)
}

// Plan is a recipe compiled for one node.
type Plan struct {
	Recipe string
	Gate   gate.Gate
	Steps  []resource.Step
	// Excluded names the steps whose when expression was false, in
	// declaration order.
	Excluded []string
}

// Compile validates every step of r, builds it through reg and keeps the
// steps whose when expression holds for a. Any invalid step fails the whole
// compilation, including steps that would have been excluded.
func Compile(r *config.Recipe, a attrs.NodeAttributes, reg *resource.Registry) (*Plan, error) {
	if r == nil {
		return nil, fmt.Errorf("recipe is nil")
	}

	g, err := gate.Compile(r.Gate)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Recipe: r.Name, Gate: g}
	for _, spec := range r.Steps {
		rs, err := spec.ToSpec()
		if err != nil {
			return nil, err
		}
		step, err := reg.Build(rs)
		if err != nil {
			return nil, err
		}

		when, err := gate.Compile(spec.When)
		if err != nil {
			return nil, resource.NewValidationError(spec.Name, err)
		}
		if !when.Evaluate(a) {
			plan.Excluded = append(plan.Excluded, spec.Name)
			continue
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}
