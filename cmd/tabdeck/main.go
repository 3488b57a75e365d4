package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/asheshgoplani/tabdeck/internal/config"
	"github.com/asheshgoplani/tabdeck/internal/journal"
	"github.com/asheshgoplani/tabdeck/internal/logging"
	"github.com/asheshgoplani/tabdeck/internal/platform"
	"github.com/asheshgoplani/tabdeck/internal/store"
	"github.com/asheshgoplani/tabdeck/internal/tabs"
	"github.com/asheshgoplani/tabdeck/internal/wm"
)

const Version = "0.4.1"

func main() {
	args := os.Args[1:]

	// No command defaults to starting a session.
	command := "start"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "version", "--version", "-v":
		fmt.Printf("tabdeck v%s\n", Version)
		return
	case "help", "--help", "-h":
		printHelp()
		return
	}

	initColorProfile()
	initLogging()
	defer logging.Shutdown()

	switch command {
	case "start":
		ensureDependencies(command)
		handleStart(args)
	case "new":
		ensureDependencies(command)
		handleNew(args)
	case "next", "prev":
		ensureDependencies(command)
		handleCycle(command, args)
	case "end":
		ensureDependencies(command)
		handleEnd(args)
	case "status":
		handleStatus(args)
	case "history":
		handleHistory(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(os.Stderr, "Available commands: start, new, next, prev, end, status, history")
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: tabdeck [command]")
	fmt.Println()
	fmt.Println("Turn window-manager terminals into a tabbed session.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  start      Start a new session with one terminal tab (default)")
	fmt.Println("  new        Open a new tab in the running session")
	fmt.Println("  next       Switch to the next tab")
	fmt.Println("  prev       Switch to the previous tab")
	fmt.Println("  end        Close all tabs and end the session")
	fmt.Println("  status     Print the [tab/count] status string for prompts")
	fmt.Println("  history    Show recent session operations")
	fmt.Println("  version    Print the version")
	fmt.Println()
	fmt.Println("Configuration lives in ~/.tabdeck/config.toml; set TABDECK_DEBUG=1")
	fmt.Println("to write a rotated debug log to ~/.tabdeck/debug.log.")
}

// initColorProfile configures lipgloss based on terminal capabilities.
// TABDECK_COLOR overrides detection: truecolor, 256, 16, none.
func initColorProfile() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	switch strings.ToLower(os.Getenv("TABDECK_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	lipgloss.SetColorProfile(termenv.ANSI256)
}

// initLogging wires the rotated debug log. Warns once when config.toml is
// present but unparseable (the config itself degrades to defaults).
func initLogging() {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", cfgErr)
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		return
	}

	logging.Init(logging.Config{
		Debug:      os.Getenv("TABDECK_DEBUG") != "",
		LogDir:     baseDir,
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		Compress:   cfg.Logs.Compress,
	})
}

// commandDependencies maps each session command to the external programs
// it shells out to. The terminal emulator is configurable, so the map is
// built per invocation.
func commandDependencies(terminal string) map[string][]string {
	return map[string][]string{
		"start": {terminal, "xdotool"},
		"new":   {terminal, "xdotool"},
		"next":  {"xdotool"},
		"prev":  {"xdotool"},
		"end":   {"xdotool"},
	}
}

// ensureDependencies validates required external programs and the display
// server before any state is touched. Missing dependencies are the one
// failure class that exits non-zero (besides unknown commands).
func ensureDependencies(command string) {
	cfg, _ := config.Load()

	required := commandDependencies(cfg.Terminal.Program)[command]
	if missing := wm.MissingPrograms(required...); len(missing) > 0 {
		fmt.Fprintf(os.Stderr,
			"Cannot continue because the following dependencies are missing: %s.\n",
			strings.Join(missing, ", "))
		fmt.Fprintln(os.Stderr, "Please install them and try again.")
		os.Exit(1)
	}

	if !platform.HasXDisplay() {
		fmt.Fprintf(os.Stderr,
			"Error: no X display available (%s); xdotool needs a reachable X server.\n",
			platform.Detect())
		os.Exit(1)
	}
}

// newController assembles the store, backend, poll policy, and (when
// enabled) the operation journal. The returned cleanup closes the journal.
func newController() (*tabs.Controller, func(), error) {
	cfg, _ := config.Load()

	sessionPath, err := config.SessionPath()
	if err != nil {
		return nil, nil, err
	}

	st := store.New(sessionPath)
	backend := wm.NewX11(cfg.Terminal.Program, cfg.Terminal.WMClass)
	ctrl := tabs.New(st, backend, tabs.PollPolicy{
		Attempts: cfg.Discovery.Attempts,
		Interval: cfg.Discovery.Interval(),
	})

	cleanup := func() {}
	if cfg.History.GetEnabled() {
		if path, err := config.HistoryPath(); err == nil {
			if j, err := journal.Open(path); err == nil {
				if err := j.Migrate(); err == nil {
					ctrl.AttachJournal(j)
					cleanup = func() { _ = j.Close() }
				} else {
					_ = j.Close()
				}
			}
		}
	}

	return ctrl, cleanup, nil
}

func handleStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("q", false, "Minimal output")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	out := NewCLIOutput(*jsonOutput, *quiet)

	ctrl, cleanup, err := newController()
	if err != nil {
		out.Error(err.Error(), ErrCodeInvalidOperation)
		return
	}
	defer cleanup()

	if !*jsonOutput && !*quiet {
		fmt.Println("Starting new session...")
	}

	id, err := ctrl.Start(context.Background())
	if err != nil {
		if errors.Is(err, tabs.ErrDiscoveryTimeout) {
			out.Error("failed to start and find the new terminal window", ErrCodeTimeout)
			return
		}
		out.Error(err.Error(), ErrCodeInvalidOperation)
		return
	}

	out.Success(fmt.Sprintf("New session started with window %s", id), map[string]interface{}{
		"success": true,
		"window":  int64(id),
	})
}

func handleNew(args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("q", false, "Minimal output")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	out := NewCLIOutput(*jsonOutput, *quiet)

	ctrl, cleanup, err := newController()
	if err != nil {
		out.Error(err.Error(), ErrCodeInvalidOperation)
		return
	}
	defer cleanup()

	id, err := ctrl.NewTab(context.Background())
	if err != nil {
		switch {
		case errors.Is(err, tabs.ErrNoSession):
			if *jsonOutput {
				out.Error("no active session", ErrCodeNoSession)
			} else {
				fmt.Println("No active session. Use 'start' first.")
			}
		case errors.Is(err, tabs.ErrDiscoveryTimeout):
			out.Error("failed to create a new terminal window", ErrCodeTimeout)
		default:
			out.Error(err.Error(), ErrCodeInvalidOperation)
		}
		return
	}

	out.Success(fmt.Sprintf("New tab created with window %s", id), map[string]interface{}{
		"success": true,
		"window":  int64(id),
	})
}

func handleCycle(command string, args []string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctrl, cleanup, err := newController()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	defer cleanup()

	var rec store.Record
	if command == "next" {
		rec, err = ctrl.Next()
	} else {
		rec, err = ctrl.Prev()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	// Cycling stays silent in human mode so it can sit on a key binding.
	if *jsonOutput {
		NewCLIOutput(true, false).Print("", rec)
	}
}

func handleEnd(args []string) {
	fs := flag.NewFlagSet("end", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	quiet := fs.Bool("q", false, "Minimal output")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	out := NewCLIOutput(*jsonOutput, *quiet)

	ctrl, cleanup, err := newController()
	if err != nil {
		out.Error(err.Error(), ErrCodeInvalidOperation)
		return
	}
	defer cleanup()

	if !*jsonOutput && !*quiet {
		fmt.Println("Ending session...")
	}

	if err := ctrl.End(); err != nil {
		out.Error(err.Error(), ErrCodeInvalidOperation)
		return
	}

	out.Success("Session ended", map[string]interface{}{"success": true})
}
