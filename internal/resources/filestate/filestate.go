// Package filestate compares files and directories on a Filesystem with
// their desired content, ownership and mode, and converges them.
package filestate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
	"github.com/alexisbeaulieu97/dcvprov/pkg/diff"
)

// DefaultFileMode is used for new files when no mode is requested.
const DefaultFileMode os.FileMode = 0o644

// Attributes is the desired ownership and mode of a path. UID and GID are -1
// when the step leaves them unmanaged.
type Attributes struct {
	Owner   string
	Group   string
	UID     int
	GID     int
	Mode    os.FileMode
	HasMode bool
}

// ParseAttributes reads the owner, group and mode parameters of a resolved
// spec and resolves names to ids.
func ParseAttributes(fsys system.Filesystem, spec resource.Spec) (Attributes, error) {
	out := Attributes{
		Owner: spec.Param(resource.ParamOwner),
		Group: spec.Param(resource.ParamGroup),
		UID:   -1,
		GID:   -1,
	}

	if out.Owner != "" {
		uid, _, err := fsys.LookupUser(out.Owner)
		if err != nil {
			return Attributes{}, fmt.Errorf("resolve owner: %w", err)
		}
		out.UID = uid
	}
	if out.Group != "" {
		gid, err := fsys.LookupGroup(out.Group)
		if err != nil {
			return Attributes{}, fmt.Errorf("resolve group: %w", err)
		}
		out.GID = gid
	}
	if raw := spec.Param(resource.ParamMode); raw != "" {
		mode, err := resource.ParseMode(raw)
		if err != nil {
			return Attributes{}, err
		}
		out.Mode = mode
		out.HasMode = true
	}
	return out, nil
}

// Drift lists how an existing entry differs from the attributes.
func (a Attributes) Drift(info system.FileInfo) []string {
	var drift []string
	if a.HasMode && resource.ModeBits(info.Mode) != resource.ModeBits(a.Mode) {
		drift = append(drift, fmt.Sprintf("mode %s, want %s", resource.FormatMode(info.Mode), resource.FormatMode(a.Mode)))
	}
	if a.UID >= 0 && info.UID != a.UID {
		drift = append(drift, fmt.Sprintf("owner uid %d, want %s (%d)", info.UID, a.Owner, a.UID))
	}
	if a.GID >= 0 && info.GID != a.GID {
		drift = append(drift, fmt.Sprintf("group gid %d, want %s (%d)", info.GID, a.Group, a.GID))
	}
	return drift
}

// Enforce sets ownership and then mode on path. Mode is applied after chown
// because changing ownership clears the setuid and setgid bits.
func (a Attributes) Enforce(fsys system.Filesystem, path string) error {
	info, err := fsys.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Exists {
		return fmt.Errorf("%s does not exist", path)
	}

	chowned := false
	if (a.UID >= 0 && info.UID != a.UID) || (a.GID >= 0 && info.GID != a.GID) {
		if err := fsys.Chown(path, a.UID, a.GID); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		chowned = true
	}
	if a.HasMode && (chowned || resource.ModeBits(info.Mode) != resource.ModeBits(a.Mode)) {
		if err := fsys.Chmod(path, a.Mode); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	return nil
}

// Hash returns the hex sha256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FilePlan is the probed state of a managed regular file.
type FilePlan struct {
	Path       string
	Content    []byte
	Attributes Attributes
	Exists     bool
	Current    system.FileInfo
	ContentOK  bool
	Drift      []string
	Diff       string
}

// PlanFile compares the file at path with the desired content and attributes.
func PlanFile(fsys system.Filesystem, path string, content []byte, attributes Attributes) (*FilePlan, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	plan := &FilePlan{Path: path, Content: content, Attributes: attributes, Exists: info.Exists, Current: info}
	if !info.Exists {
		plan.Diff = diff.Unified(nil, content, path, diff.DefaultMaxLines)
		return plan, nil
	}

	current, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	plan.ContentOK = bytes.Equal(current, content)
	if !plan.ContentOK {
		plan.Diff = diff.Unified(current, content, path, diff.DefaultMaxLines)
	}
	plan.Drift = attributes.Drift(info)
	return plan, nil
}

// Satisfied reports whether nothing needs to change.
func (p *FilePlan) Satisfied() bool {
	return p.Exists && p.ContentOK && len(p.Drift) == 0
}

// Evaluation converts the plan into a probe result carrying itself.
func (p *FilePlan) Evaluation(step string) *model.EvaluationResult {
	var result *model.EvaluationResult
	switch {
	case p.Satisfied():
		result = model.Satisfied(step, fmt.Sprintf("%s is up to date", p.Path))
	case !p.Exists:
		result = model.NeedsAction(step, fmt.Sprintf("%s does not exist", p.Path))
	case !p.ContentOK:
		result = model.NeedsAction(step, fmt.Sprintf("%s content differs (sha256 %s)", p.Path, Hash(p.Content)[:12]))
	default:
		result = model.NeedsAction(step, fmt.Sprintf("%s: %s", p.Path, strings.Join(p.Drift, "; ")))
	}
	result.Diff = p.Diff
	result.InternalData = p
	return result
}

// Apply writes the content when it drifted and then enforces attributes.
func (p *FilePlan) Apply(fsys system.Filesystem) error {
	if !p.Exists || !p.ContentOK {
		mode := DefaultFileMode
		if p.Exists {
			mode = resource.ModeBits(p.Current.Mode)
		}
		if p.Attributes.HasMode {
			mode = p.Attributes.Mode
		}
		if err := fsys.WriteFile(p.Path, p.Content, mode); err != nil {
			return fmt.Errorf("write %s: %w", p.Path, err)
		}
	}

	// A replaced file keeps its previous owner unless the step manages it.
	attributes := p.Attributes
	if p.Exists {
		if attributes.UID < 0 && p.Current.UID >= 0 {
			attributes.UID = p.Current.UID
		}
		if attributes.GID < 0 && p.Current.GID >= 0 {
			attributes.GID = p.Current.GID
		}
	}
	return attributes.Enforce(fsys, p.Path)
}
