// Package platform detects which display server is reachable so commands
// that drive xdotool can fail early with a useful message instead of a
// subprocess error.
package platform

import (
	"os"
	"runtime"
)

// DisplayServer represents the detected display environment.
type DisplayServer string

const (
	DisplayX11     DisplayServer = "x11"
	DisplayWayland DisplayServer = "wayland"
	DisplayNone    DisplayServer = "none"
)

// cached detection result
var detected DisplayServer
var detectionDone bool

// Detect returns the current display server, caching the result.
func Detect() DisplayServer {
	if detectionDone {
		return detected
	}
	detected = detectDisplayServer()
	detectionDone = true
	return detected
}

func detectDisplayServer() DisplayServer {
	if runtime.GOOS != "linux" {
		return DisplayNone
	}

	switch os.Getenv("XDG_SESSION_TYPE") {
	case "x11":
		return DisplayX11
	case "wayland":
		return DisplayWayland
	}

	// Session type unset (ssh, cron, bare WMs): fall back to the sockets.
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return DisplayWayland
	}
	if os.Getenv("DISPLAY") != "" {
		return DisplayX11
	}
	return DisplayNone
}

// HasXDisplay reports whether xdotool has an X display to talk to. Wayland
// sessions count when XWayland exports DISPLAY.
func HasXDisplay() bool {
	switch Detect() {
	case DisplayX11:
		return true
	case DisplayWayland:
		return os.Getenv("DISPLAY") != ""
	default:
		return false
	}
}

// String returns a human-readable name.
func (d DisplayServer) String() string {
	switch d {
	case DisplayX11:
		return "X11"
	case DisplayWayland:
		return "Wayland"
	default:
		return "no display"
	}
}
