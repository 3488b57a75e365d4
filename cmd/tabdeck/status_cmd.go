package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/tabdeck/internal/config"
	"github.com/asheshgoplani/tabdeck/internal/logging"
	"github.com/asheshgoplani/tabdeck/internal/store"
)

var statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

// handleStatus prints the session's [tab/count] status string, intended
// for prompt and status-bar integration. It reads file-only state, so it
// needs neither xdotool nor a display.
func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	follow := fs.Bool("follow", false, "Keep printing on session changes")
	followShort := fs.Bool("f", false, "Keep printing on session changes (short)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	sessionPath, err := config.SessionPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	st := store.New(sessionPath)

	printRecord := func(rec store.Record) {
		if *jsonOutput {
			NewCLIOutput(true, false).Print("", rec)
			return
		}
		if rec.Status == "" {
			fmt.Println()
			return
		}
		fmt.Println(statusStyle.Render(rec.Status))
	}

	rec := st.Load(nil)
	printRecord(rec)

	if !*follow && !*followShort {
		return
	}

	followStatus(st, sessionPath, rec.Status, printRecord)
}

// followStatus watches the session file and re-prints whenever the derived
// status changes. The watch is on the parent directory: the store replaces
// the file by rename, which would drop a direct file watch.
func followStatus(st *store.Store, sessionPath, last string, printRecord func(store.Record)) {
	log := logging.ForComponent(logging.CompCLI)

	dir := filepath.Dir(sessionPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot watch session file: %v\n", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot watch %s: %v\n", dir, err)
		return
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != config.SessionFileName {
				continue
			}
			rec := st.Load(nil)
			if rec.Status == last {
				continue
			}
			last = rec.Status
			printRecord(rec)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
