// Command sessionview prints reports for persisted learning sessions.
//
// Usage:
//
//	sessionview [-data dir] [-html] [session_id]
//
// Without a session id it lists all persisted sessions; with one it renders
// that session's report. -html switches both outputs to HTML.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/setsuna-project/setsuna/internal/engine"
	"github.com/setsuna-project/setsuna/internal/report"
)

func main() {
	dataDir := flag.String("data", "data/activity_knowledge", "data directory holding session files")
	htmlOut := flag.Bool("html", false, "render HTML instead of plain text")
	flag.Parse()

	if err := run(*dataDir, *htmlOut, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "sessionview:", err)
		os.Exit(1)
	}
}

func run(dataDir string, htmlOut bool, sessionID string) error {
	if sessionID != "" {
		st, err := engine.ReadSessionFile(dataDir, sessionID)
		if err != nil {
			return err
		}
		if htmlOut {
			return report.HTML(os.Stdout, st)
		}
		fmt.Print(report.Text(st))
		return nil
	}

	ids, err := engine.ListSessionFiles(dataDir)
	if err != nil {
		return err
	}
	sts := make([]engine.Status, 0, len(ids))
	for _, id := range ids {
		st, err := engine.ReadSessionFile(dataDir, id)
		if err != nil {
			return err
		}
		sts = append(sts, st)
	}
	if htmlOut {
		return report.HTMLList(os.Stdout, sts)
	}
	fmt.Print(report.ListText(sts))
	return nil
}
