package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"story_draft_agent/internal/appinfo"
)

func binaryName() string {
	if len(os.Args) == 0 {
		return "agent"
	}
	name := strings.TrimSpace(filepath.Base(os.Args[0]))
	if name == "" {
		return "agent"
	}
	return name
}

func isHelpArg(arg string) bool {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "-h", "--help", "-help", "help":
		return true
	default:
		return false
	}
}

func printRootUsage(w io.Writer) {
	bin := binaryName()
	fmt.Fprintf(w, `%s - chat and artifact drafting client (%s)

Usage:
  %s [command] [options]

Commands:
  chat        Interactive session (default)
  init        Write a starter config.json

Options for chat:
  --config    path to config.json (default: ./config.json)
  --catalog   generator catalog YAML (default: generator_catalog from config)
  --ui        tui or plain (default: tui when stdout is a TTY)

In a session:
  /story <objective> [| ctx: <extra context>]   draft a user story
  /rtr <objective> [| ctx: <extra context>]     draft an RTR
  /approve [n]                                  persist a previewed artifact
  /reset                                        start a fresh session
  /export [file]                                write the transcript as HTML
  /exit                                         quit
`, bin, appinfo.Display(), bin)
}
