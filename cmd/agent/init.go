package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

const starterConfig = `{
  "backend_url": "http://localhost:8081",
  "chat_path": "/chat",
  "timeout_seconds": 120,
  "greeting": "",
  "generator_catalog": ""
}
`

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to write")
	force := fs.Bool("force", false, "overwrite an existing config")
	fs.Parse(args)

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = "config.json"
	}
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stdout, "config: %s (exists)\n", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "config: %s (created)\n", path)
	fmt.Fprintln(os.Stdout, "edit backend_url to point at your orchestrator, then run: "+binaryName()+" chat")
	return nil
}
