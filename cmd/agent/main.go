package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"story_draft_agent/internal/command"
	"story_draft_agent/internal/config"
	"story_draft_agent/internal/plainui"
	"story_draft_agent/internal/remote"
	"story_draft_agent/internal/session"
	"story_draft_agent/internal/tui"
)

func main() {
	if len(os.Args) < 2 {
		if err := runChat(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if isHelpArg(os.Args[1]) {
		printRootUsage(os.Stdout)
		return
	}

	switch os.Args[1] {
	case "chat":
		if err := runChat(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "init":
		if err := runInit(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	default:
		if err := runChat(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	catalogPath := fs.String("catalog", "", "generator catalog YAML (default: generator_catalog from config)")
	ui := fs.String("ui", "", "ui mode: tui or plain (default: tui when stdout is a TTY)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	catalog := strings.TrimSpace(*catalogPath)
	if catalog == "" {
		catalog = cfg.GeneratorCatalog
	}
	registry, err := command.LoadRegistry(catalog)
	if err != nil {
		return err
	}

	client, err := remote.NewHTTPClient(cfg.BackendURL, cfg.ChatPath, registry, cfg.Timeout())
	if err != nil {
		return err
	}

	ctrl, err := session.New(session.Options{
		Chat:      client,
		Generator: client,
		Registry:  registry,
		Greeting:  cfg.Greeting,
	})
	if err != nil {
		return err
	}

	mode := strings.ToLower(strings.TrimSpace(*ui))
	if mode == "" {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			mode = "tui"
		} else {
			mode = "plain"
		}
	}

	ctx := context.Background()
	switch mode {
	case "tui":
		return tui.Run(ctx, ctrl, os.Stdin, os.Stdout)
	case "plain":
		return plainui.Run(ctx, ctrl, os.Stdin, os.Stdout)
	default:
		return fmt.Errorf("unknown ui mode %q (want tui or plain)", mode)
	}
}
