// Package systemtest provides in-memory fakes of the system collaborators.
package systemtest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// Packages is an in-memory PackageManager.
type Packages struct {
	mu        sync.Mutex
	installed map[string]string
	upgrades  map[string]bool
	artifacts map[string]string

	InstallErr error
	QueryErr   error
	Installs   []string
	Upgrades   []string
}

// NewPackages returns an empty package database.
func NewPackages() *Packages {
	return &Packages{
		installed: map[string]string{},
		upgrades:  map[string]bool{},
		artifacts: map[string]string{},
	}
}

// AddArtifact registers a local package file and the name it carries.
func (p *Packages) AddArtifact(source, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.artifacts[source] = name
}

// MarkInstalled records name as installed, optionally with a pending upgrade.
func (p *Packages) MarkInstalled(name string, upgradable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.installed[name] = "1"
	p.upgrades[name] = upgradable
}

// Installed reports whether name is installed.
func (p *Packages) Installed(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.installed[name]
	return ok
}

func (p *Packages) ResolveName(_ context.Context, source string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.artifacts[source]
	if !ok {
		return "", fmt.Errorf("no package artifact at %s", source)
	}
	return name, nil
}

func (p *Packages) IsInstalled(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return false, p.QueryErr
	}
	_, ok := p.installed[name]
	return ok, nil
}

func (p *Packages) UpgradeAvailable(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return false, p.QueryErr
	}
	return p.upgrades[name], nil
}

func (p *Packages) Install(_ context.Context, name, source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.InstallErr != nil {
		return p.InstallErr
	}
	if source != "" {
		resolved, ok := p.artifacts[source]
		if !ok {
			return fmt.Errorf("no package artifact at %s", source)
		}
		name = resolved
	}
	p.installed[name] = "1"
	p.Installs = append(p.Installs, name)
	return nil
}

func (p *Packages) Upgrade(ctx context.Context, name, source string) error {
	if err := p.Install(ctx, name, source); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upgrades[name] = false
	p.Upgrades = append(p.Upgrades, name)
	return nil
}

// Services is an in-memory ServiceManager.
type Services struct {
	mu      sync.Mutex
	active  map[string]bool
	enabled map[string]bool

	StartErr error
	Calls    []string
}

// NewServices returns a service manager with every unit stopped and disabled.
func NewServices() *Services {
	return &Services{active: map[string]bool{}, enabled: map[string]bool{}}
}

// Set forces the state of a unit.
func (s *Services) Set(unit string, active, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[unit] = active
	s.enabled[unit] = enabled
}

// State returns the state of a unit.
func (s *Services) State(unit string) (active, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[unit], s.enabled[unit]
}

func (s *Services) IsActive(_ context.Context, unit string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[unit], nil
}

func (s *Services) IsEnabled(_ context.Context, unit string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[unit], nil
}

func (s *Services) Start(_ context.Context, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "start "+unit)
	if s.StartErr != nil {
		return s.StartErr
	}
	s.active[unit] = true
	return nil
}

func (s *Services) Stop(_ context.Context, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "stop "+unit)
	s.active[unit] = false
	return nil
}

func (s *Services) Enable(_ context.Context, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "enable "+unit)
	s.enabled[unit] = true
	return nil
}

func (s *Services) Disable(_ context.Context, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "disable "+unit)
	s.enabled[unit] = false
	return nil
}

// Handler scripts the outcome of one command.
type Handler func(cmd system.Cmd) (system.Result, error)

// Runner is a scriptable Runner. Commands without a matching handler exit 0.
type Runner struct {
	mu       sync.Mutex
	handlers []matcher
	calls    []system.Cmd
}

type matcher struct {
	substr  string
	handler Handler
}

// NewRunner returns a runner where every command succeeds.
func NewRunner() *Runner {
	return &Runner{}
}

// On installs handler for commands whose joined argv contains substr. The
// most recently installed matching handler wins.
func (r *Runner) On(substr string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, matcher{substr: substr, handler: handler})
}

// Fail makes commands containing substr exit with code.
func (r *Runner) Fail(substr string, code int) {
	r.On(substr, func(cmd system.Cmd) (system.Result, error) {
		return Exit(cmd, code, "")
	})
}

// Calls returns every command run so far.
func (r *Runner) Calls() []system.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]system.Cmd(nil), r.calls...)
}

// CountContaining counts commands whose joined argv contains substr.
func (r *Runner) CountContaining(substr string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.Contains(strings.Join(c.Argv, " "), substr) {
			n++
		}
	}
	return n
}

func (r *Runner) Run(_ context.Context, cmd system.Cmd) (system.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	line := strings.Join(cmd.Argv, " ")
	var handler Handler
	for i := len(r.handlers) - 1; i >= 0; i-- {
		if strings.Contains(line, r.handlers[i].substr) {
			handler = r.handlers[i].handler
			break
		}
	}
	r.mu.Unlock()

	if handler == nil {
		return system.Result{}, nil
	}
	return handler(cmd)
}

// Exit builds the result of a process exiting with code.
func Exit(cmd system.Cmd, code int, output string) (system.Result, error) {
	if code == 0 {
		return system.Result{Stdout: output}, nil
	}
	res := system.Result{ExitCode: code, Stderr: output}
	return res, &system.ExitError{Argv: cmd.Argv, Code: code, Output: output}
}

type memEntry struct {
	data []byte
	dir  bool
	mode os.FileMode
	uid  int
	gid  int
}

// MemFS is an in-memory Filesystem with a small user and group database.
type MemFS struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	users   map[string][2]int
	groups  map[string]int

	// ChownErr, when set, is returned by every Chown.
	ChownErr error
	Writes   int
}

var _ system.Filesystem = (*MemFS)(nil)

// NewMemFS returns a filesystem containing only "/" and the root user.
func NewMemFS() *MemFS {
	return &MemFS{
		entries: map[string]*memEntry{"/": {dir: true, mode: os.ModeDir | 0o755}},
		users:   map[string][2]int{"root": {0, 0}},
		groups:  map[string]int{"root": 0},
	}
}

// AddUser registers a user with its primary group.
func (m *MemFS) AddUser(name string, uid, gid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[name] = [2]int{uid, gid}
}

// AddGroup registers a group.
func (m *MemFS) AddGroup(name string, gid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[name] = gid
}

// Put creates a file and its parents directly.
func (m *MemFS) Put(p string, data []byte, mode os.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	m.mkdirAllLocked(path.Dir(p), 0o755)
	m.entries[p] = &memEntry{data: append([]byte(nil), data...), mode: mode}
}

// Paths lists every entry, sorted.
func (m *MemFS) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for p := range m.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *MemFS) Stat(p string) (system.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path.Clean(p)]
	if !ok {
		return system.FileInfo{}, nil
	}
	return system.FileInfo{Exists: true, IsDir: e.dir, Mode: e.mode, UID: e.uid, GID: e.gid}, nil
}

func (m *MemFS) ReadFile(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path.Clean(p)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	if e.dir {
		return nil, &fs.PathError{Op: "read", Path: p, Err: fmt.Errorf("is a directory")}
	}
	return append([]byte(nil), e.data...), nil
}

func (m *MemFS) WriteFile(p string, data []byte, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	parent, ok := m.entries[path.Dir(p)]
	if !ok || !parent.dir {
		return &fs.PathError{Op: "write", Path: p, Err: fs.ErrNotExist}
	}
	uid, gid := 0, 0
	if existing, ok := m.entries[p]; ok {
		uid, gid = existing.uid, existing.gid
	}
	m.entries[p] = &memEntry{data: append([]byte(nil), data...), mode: mode, uid: uid, gid: gid}
	m.Writes++
	return nil
}

func (m *MemFS) Mkdir(p string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	if _, ok := m.entries[p]; ok {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	parent, ok := m.entries[path.Dir(p)]
	if !ok || !parent.dir {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrNotExist}
	}
	m.entries[p] = &memEntry{dir: true, mode: os.ModeDir | mode.Perm()}
	return nil
}

func (m *MemFS) MkdirAll(p string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	if e, ok := m.entries[p]; ok && !e.dir {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fmt.Errorf("not a directory")}
	}
	m.mkdirAllLocked(p, mode)
	return nil
}

func (m *MemFS) mkdirAllLocked(p string, mode os.FileMode) {
	if _, ok := m.entries[p]; ok {
		return
	}
	m.mkdirAllLocked(path.Dir(p), mode)
	m.entries[p] = &memEntry{dir: true, mode: os.ModeDir | mode.Perm()}
}

func (m *MemFS) Chmod(p string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path.Clean(p)]
	if !ok {
		return &fs.PathError{Op: "chmod", Path: p, Err: fs.ErrNotExist}
	}
	keep := os.FileMode(0)
	if e.dir {
		keep = os.ModeDir
	}
	e.mode = keep | mode&(os.ModePerm|os.ModeSetuid|os.ModeSetgid|os.ModeSticky)
	return nil
}

func (m *MemFS) Chown(p string, uid, gid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ChownErr != nil {
		return m.ChownErr
	}
	e, ok := m.entries[path.Clean(p)]
	if !ok {
		return &fs.PathError{Op: "chown", Path: p, Err: fs.ErrNotExist}
	}
	if uid >= 0 {
		e.uid = uid
	}
	if gid >= 0 {
		e.gid = gid
	}
	return nil
}

func (m *MemFS) LookupUser(name string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.users[name]
	if !ok {
		return 0, 0, fmt.Errorf("unknown user %s", name)
	}
	return ids[0], ids[1], nil
}

func (m *MemFS) LookupGroup(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gid, ok := m.groups[name]
	if !ok {
		return 0, fmt.Errorf("unknown group %s", name)
	}
	return gid, nil
}
