package wm

import (
	"log/slog"
	"os/exec"
	"strings"

	"github.com/asheshgoplani/tabdeck/internal/logging"
)

var wmLog = logging.ForComponent(logging.CompWM)

// runner abstracts subprocess execution so tests can script xdotool.
type runner interface {
	// output runs a command to completion and returns trimmed stdout.
	output(name string, args ...string) (string, error)
	// detach starts a command without waiting for it to exit.
	detach(name string, args ...string) error
}

type execRunner struct{}

func (execRunner) output(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (execRunner) detach(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Let the terminal outlive us; we discover it via Windows() instead.
	return cmd.Process.Release()
}

// X11 drives terminal windows through xdotool. New terminals are launched
// with a dedicated WM class so enumeration only ever sees our own windows.
type X11 struct {
	terminal string
	class    string
	run      runner
	log      *slog.Logger
}

// NewX11 returns a backend launching `terminal` windows tagged with `class`.
func NewX11(terminal, class string) *X11 {
	return &X11{
		terminal: terminal,
		class:    class,
		run:      execRunner{},
		log:      wmLog,
	}
}

func (x *X11) LaunchTerminal() error {
	// --class sets both instance and class so xdotool search --class matches.
	return x.run.detach(x.terminal, "--class", x.class+","+x.class)
}

func (x *X11) Windows() []WindowID {
	out, err := x.run.output("xdotool", "search", "--class", x.class)
	if err != nil {
		// xdotool exits non-zero when nothing matches; treat as empty.
		x.log.Debug("window_search_empty", slog.String("error", err.Error()))
		return nil
	}

	var ids []WindowID
	for _, field := range strings.Fields(out) {
		id, err := ParseWindowID(field)
		if err != nil {
			x.log.Warn("bad_window_id", slog.String("value", field))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (x *X11) Hide(id WindowID) error {
	return x.command("windowunmap", id)
}

func (x *X11) Show(id WindowID) error {
	return x.command("windowmap", id)
}

func (x *X11) Focus(id WindowID) error {
	return x.command("windowactivate", id)
}

func (x *X11) Close(id WindowID) error {
	return x.command("windowclose", id)
}

func (x *X11) command(sub string, id WindowID) error {
	_, err := x.run.output("xdotool", sub, id.String())
	return err
}
