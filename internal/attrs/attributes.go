// Package attrs holds the read-only snapshot of node facts consulted by gates
// and steps during a provisioning run.
package attrs

import (
	"sort"
	"strconv"
	"strings"
)

// Well-known attribute keys.
const (
	KeyPlatform         = "platform"
	KeyPlatformVersion  = "platform_version"
	KeyRole             = "role"
	KeyInstanceType     = "instance_type"
	KeyGraphicsInstance = "graphics_instance"
)

// Source is a read-only key lookup over node facts.
type Source interface {
	Lookup(key string) (string, bool)
}

// NodeAttributes is an immutable snapshot of environment facts. The zero
// value is an empty snapshot. Build one with a Builder.
type NodeAttributes struct {
	platform        string
	platformVersion string
	role            string
	instanceType    string
	graphics        bool
	extra           map[string]string
}

var _ Source = NodeAttributes{}

// Platform returns the lower-cased distribution id, e.g. "centos".
func (a NodeAttributes) Platform() string { return a.platform }

// PlatformVersion returns the raw distribution version, e.g. "7.9.2009".
func (a NodeAttributes) PlatformVersion() string { return a.platformVersion }

// Role returns the cluster role of the node, e.g. "MasterServer".
func (a NodeAttributes) Role() string { return a.role }

// InstanceType returns the cloud instance type, e.g. "g4dn.xlarge".
func (a NodeAttributes) InstanceType() string { return a.instanceType }

// GraphicsInstance reports whether the caller asked for GPU acceleration.
func (a NodeAttributes) GraphicsInstance() bool { return a.graphics }

// PlatformMajorVersion returns the leading integer of the platform version,
// or 0 when it cannot be parsed.
func (a NodeAttributes) PlatformMajorVersion() int {
	head := a.platformVersion
	if i := strings.IndexAny(head, ".-_ "); i >= 0 {
		head = head[:i]
	}
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return major
}

// Lookup resolves a well-known or extra attribute.
func (a NodeAttributes) Lookup(key string) (string, bool) {
	switch key {
	case KeyPlatform:
		return a.platform, a.platform != ""
	case KeyPlatformVersion:
		return a.platformVersion, a.platformVersion != ""
	case KeyRole:
		return a.role, a.role != ""
	case KeyInstanceType:
		return a.instanceType, a.instanceType != ""
	case KeyGraphicsInstance:
		return strconv.FormatBool(a.graphics), true
	}
	v, ok := a.extra[key]
	return v, ok
}

// Get returns the attribute value or an empty string.
func (a NodeAttributes) Get(key string) string {
	v, _ := a.Lookup(key)
	return v
}

// Map returns a copy of every attribute, well-known keys included.
func (a NodeAttributes) Map() map[string]string {
	out := make(map[string]string, len(a.extra)+5)
	for k, v := range a.extra {
		out[k] = v
	}
	for _, k := range []string{KeyPlatform, KeyPlatformVersion, KeyRole, KeyInstanceType, KeyGraphicsInstance} {
		if v, ok := a.Lookup(k); ok {
			out[k] = v
		}
	}
	return out
}

// Keys returns the sorted attribute keys.
func (a NodeAttributes) Keys() []string {
	m := a.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
