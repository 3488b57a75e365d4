// Package wm defines the window-manager capability tabdeck depends on.
// The production backend shells out to xdotool; everything above this
// package only sees opaque window IDs and best-effort commands.
package wm

import (
	"os/exec"
	"sort"
	"strconv"
)

// WindowID is an opaque backend-assigned window identifier.
// Valid only while the backend still reports the window as live.
type WindowID int64

// ParseWindowID parses a decimal window ID as printed by xdotool.
func ParseWindowID(s string) (WindowID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return WindowID(n), nil
}

// String returns the decimal form expected by xdotool subcommands.
func (id WindowID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IDSet is a set of window IDs used for reconciliation and discovery
// baselines. A nil IDSet means "no liveness information"; use NewIDSet to
// get a non-nil (possibly empty) set.
type IDSet map[WindowID]struct{}

// NewIDSet builds a non-nil set from a slice of IDs.
func NewIDSet(ids []WindowID) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is in the set. Safe on a nil set.
func (s IDSet) Contains(id WindowID) bool {
	_, ok := s[id]
	return ok
}

// Backend abstracts the window-manager and terminal-launch mechanism.
// Hide/Show/Focus/Close are best-effort: callers log failures and move on,
// keeping the session record consistent even when a command fails.
type Backend interface {
	// LaunchTerminal asks the backend to spawn one new terminal window
	// tagged so Windows() will later report it. Fire-and-forget: no handle
	// is returned synchronously.
	LaunchTerminal() error

	// Windows returns all currently live windows managed by tabdeck.
	// Returns an empty slice when there are none or the backend is
	// unreachable.
	Windows() []WindowID

	Hide(id WindowID) error
	Show(id WindowID) error
	Focus(id WindowID) error
	Close(id WindowID) error
}

// MissingPrograms returns the sorted subset of names not found on PATH.
func MissingPrograms(names ...string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	var missing []string
	for _, name := range sorted {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}
