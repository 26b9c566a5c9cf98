package resource

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
)

// Spec is the declarative description of one step.
type Spec struct {
	Kind       Kind
	Name       string
	State      State
	Params     map[string]string
	Retries    int
	RetryDelay time.Duration
}

// Validate checks the kind/state pair and the retry policy.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError(s.Name, fmt.Errorf("step name is required"))
	}
	if _, ok := recognized[s.Kind]; !ok {
		return NewValidationError(s.Name, fmt.Errorf("unknown kind %q", s.Kind))
	}
	if !Recognized(s.Kind, s.State) {
		return NewValidationError(s.Name, fmt.Errorf("state %q is not valid for kind %q (expected one of %v)", s.State, s.Kind, recognized[s.Kind]))
	}
	if s.Retries < 0 {
		return NewValidationError(s.Name, fmt.Errorf("retries must be non-negative, got %d", s.Retries))
	}
	if s.RetryDelay < 0 {
		return NewValidationError(s.Name, fmt.Errorf("retry_delay must be non-negative, got %s", s.RetryDelay))
	}
	if mode, ok := s.Params[ParamMode]; ok && !strings.Contains(mode, "{{") {
		if _, err := ParseMode(mode); err != nil {
			return NewValidationError(s.Name, err)
		}
	}
	return nil
}

// MaxAttempts is the attempt budget implied by Retries.
func (s Spec) MaxAttempts() int {
	return s.Retries + 1
}

// Param returns a parameter value or an empty string.
func (s Spec) Param(key string) string {
	return s.Params[key]
}

// ParamOr returns a parameter value, or def when unset or empty.
func (s Spec) ParamOr(key, def string) string {
	if v := s.Params[key]; v != "" {
		return v
	}
	return def
}

// Bool parses a boolean parameter, returning def when unset.
func (s Spec) Bool(key string, def bool) (bool, error) {
	raw, ok := s.Params[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parameter %s: %w", key, err)
	}
	return v, nil
}

// Resolve expands attribute references in every parameter.
func (s Spec) Resolve(a attrs.NodeAttributes) (Spec, error) {
	resolved := s
	resolved.Params = make(map[string]string, len(s.Params))

	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := attrs.Expand(s.Params[k], a)
		if err != nil {
			return Spec{}, fmt.Errorf("parameter %s: %w", k, err)
		}
		resolved.Params[k] = v
	}
	return resolved, nil
}

// Target is the object the step manages: the target parameter when set,
// otherwise the step name.
func (s Spec) Target() string {
	return s.ParamOr(ParamTarget, s.Name)
}

// Common parameter names.
const (
	ParamTarget    = "target"
	ParamSource    = "source"
	ParamOwner     = "owner"
	ParamGroup     = "group"
	ParamMode      = "mode"
	ParamRecursive = "recursive"
	ParamCommand   = "command"
	ParamUser      = "user"
	ParamCwd       = "cwd"
	ParamCreates   = "creates"
	ParamUnless    = "unless"
	ParamEnabled   = "enabled"
)

// ParseMode parses an octal permission string. A leading fourth digit sets
// the setuid (4), setgid (2) and sticky (1) bits.
func ParseMode(raw string) (os.FileMode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("mode is empty")
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(raw, "0o"), 8, 32)
	if err != nil || v > 07777 {
		return 0, fmt.Errorf("invalid mode %q: expected an octal value up to 7777", raw)
	}

	mode := os.FileMode(v & 0o777)
	if v&0o4000 != 0 {
		mode |= os.ModeSetuid
	}
	if v&0o2000 != 0 {
		mode |= os.ModeSetgid
	}
	if v&0o1000 != 0 {
		mode |= os.ModeSticky
	}
	return mode, nil
}

// ModeBits keeps the permission and special bits of m.
func ModeBits(m os.FileMode) os.FileMode {
	return m & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
}

// FormatMode renders m the way ParseMode accepts it.
func FormatMode(m os.FileMode) string {
	v := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		v |= 0o4000
	}
	if m&os.ModeSetgid != 0 {
		v |= 0o2000
	}
	if m&os.ModeSticky != 0 {
		v |= 0o1000
	}
	return fmt.Sprintf("%04o", v)
}
