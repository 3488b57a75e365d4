package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/asheshgoplani/tabdeck/internal/config"
	"github.com/asheshgoplani/tabdeck/internal/journal"
)

// handleHistory lists recent session operations from the journal.
func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "Number of entries to show")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path, err := config.HistoryPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No history recorded.")
		return
	}

	j, err := journal.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	defer j.Close()

	if err := j.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	entries, err := j.Recent(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	if *jsonOutput {
		type entryJSON struct {
			At     time.Time `json:"at"`
			Op     string    `json:"op"`
			Window int64     `json:"window,omitempty"`
			Tabs   int       `json:"tabs,omitempty"`
		}
		out := make([]entryJSON, len(entries))
		for i, e := range entries {
			out[i] = entryJSON{At: e.At, Op: e.Op, Window: int64(e.Window), Tabs: e.Tabs}
		}
		NewCLIOutput(true, false).Print("", out)
		return
	}

	if len(entries) == 0 {
		fmt.Println("No history recorded.")
		return
	}

	fmt.Printf("%-20s %-6s %-12s %s\n", "TIME", "OP", "WINDOW", "TABS")
	for _, e := range entries {
		window := ""
		if e.Window != 0 {
			window = e.Window.String()
		}
		tabCount := ""
		if e.Tabs > 0 {
			tabCount = fmt.Sprintf("%d", e.Tabs)
		}
		fmt.Printf("%-20s %-6s %-12s %s\n",
			e.At.Format("2006-01-02 15:04:05"), e.Op, window, tabCount)
	}
}
