package resource

import "sort"

// Kind enumerates the supported resource kinds.
type Kind string

const (
	KindPackage      Kind = "package"
	KindFileTemplate Kind = "file_template"
	KindFileCopy     Kind = "file_copy"
	KindDirectory    Kind = "directory"
	KindCommand      Kind = "command"
	KindService      Kind = "service"
)

// State is the desired state of a resource. Which states are meaningful
// depends on the kind.
type State string

const (
	StateInstalled State = "installed"
	StateUpgraded  State = "upgraded"
	StateRendered  State = "rendered"
	StatePresent   State = "present"
	StateExecuted  State = "executed"
	StateSucceeds  State = "succeeds"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
)

var recognized = map[Kind][]State{
	KindPackage:      {StateInstalled, StateUpgraded},
	KindFileTemplate: {StateRendered},
	KindFileCopy:     {StatePresent},
	KindDirectory:    {StatePresent},
	KindCommand:      {StateExecuted, StateSucceeds},
	KindService:      {StateRunning, StateStopped},
}

// Kinds returns every supported kind in lexical order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(recognized))
	for k := range recognized {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// States returns the desired states recognized for kind.
func States(kind Kind) []State {
	return append([]State(nil), recognized[kind]...)
}

// Recognized reports whether the kind/state pair is supported.
func Recognized(kind Kind, state State) bool {
	for _, s := range recognized[kind] {
		if s == state {
			return true
		}
	}
	return false
}
