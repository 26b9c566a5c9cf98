// Package gate decides whether a group of provisioning steps runs at all.
package gate

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
)

// Gate is a pure predicate over node attributes. Evaluate must not block
// and must not have side effects.
type Gate interface {
	Evaluate(a attrs.NodeAttributes) bool
}

// Func adapts a Go predicate to Gate.
type Func func(a attrs.NodeAttributes) bool

// Evaluate calls f.
func (f Func) Evaluate(a attrs.NodeAttributes) bool {
	return f(a)
}

// Always is the open gate.
var Always Gate = Func(func(attrs.NodeAttributes) bool { return true })

// All is open only when every gate is open. An empty All is open.
func All(gates ...Gate) Gate {
	return Func(func(a attrs.NodeAttributes) bool {
		for _, g := range gates {
			if g != nil && !g.Evaluate(a) {
				return false
			}
		}
		return true
	})
}

// Node matches a platform, platform major version and role. Empty strings
// and a zero major version match anything.
func Node(platform string, major int, role string) Gate {
	return Func(func(a attrs.NodeAttributes) bool {
		if platform != "" && !strings.EqualFold(a.Platform(), platform) {
			return false
		}
		if major != 0 && a.PlatformMajorVersion() != major {
			return false
		}
		if role != "" && a.Role() != role {
			return false
		}
		return true
	})
}

// Expr is a gate written as an expr-lang boolean expression, e.g.
//
//	platform == "centos" && platform_major == 7 && role == "MasterServer"
type Expr struct {
	source  string
	program *vm.Program
}

// Compile type-checks source against the attribute environment. An empty
// source compiles to an always-open gate.
func Compile(source string) (*Expr, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return &Expr{}, nil
	}

	program, err := expr.Compile(source, expr.Env(Env(attrs.NodeAttributes{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile gate %q: %w", source, err)
	}
	return &Expr{source: source, program: program}, nil
}

// MustCompile is Compile for expressions known at build time.
func MustCompile(source string) *Expr {
	e, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate reports whether the gate is open. Runtime evaluation errors close
// the gate.
func (e *Expr) Evaluate(a attrs.NodeAttributes) bool {
	ok, err := e.Check(a)
	return err == nil && ok
}

// Check evaluates the expression and reports runtime errors.
func (e *Expr) Check(a attrs.NodeAttributes) (bool, error) {
	if e == nil || e.program == nil {
		return true, nil
	}

	out, err := expr.Run(e.program, Env(a))
	if err != nil {
		return false, fmt.Errorf("evaluate gate %q: %w", e.source, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("gate %q did not return bool (got %T)", e.source, out)
	}
	return result, nil
}

// String returns the expression source.
func (e *Expr) String() string {
	if e == nil || e.source == "" {
		return "true"
	}
	return e.source
}

// Env is the variable environment gate expressions are evaluated in.
func Env(a attrs.NodeAttributes) map[string]any {
	return map[string]any{
		"platform":          a.Platform(),
		"platform_version":  a.PlatformVersion(),
		"platform_major":    a.PlatformMajorVersion(),
		"role":              a.Role(),
		"instance_type":     a.InstanceType(),
		"graphics_instance": a.GraphicsInstance(),
		"attrs":             a.Map(),
	}
}
