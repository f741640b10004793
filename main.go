// tidal - A terminal client for multi-session streaming chat.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/tidal-tui/internal/api"
	"github.com/jeranaias/tidal-tui/internal/archive"
	"github.com/jeranaias/tidal-tui/internal/config"
	"github.com/jeranaias/tidal-tui/internal/engine"
	"github.com/jeranaias/tidal-tui/internal/store"
	"github.com/jeranaias/tidal-tui/internal/transport"
	"github.com/jeranaias/tidal-tui/internal/ui/chat"
	"github.com/jeranaias/tidal-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	configPath := config.Path()

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version", "-v":
			fmt.Printf("tidal %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "--config", "-c":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: %s requires a file path\n", args[i])
				os.Exit(1)
			}
			i++
			configPath = args[i]
		case "--help", "-h":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown argument %q\n", args[i])
			printUsage()
			os.Exit(1)
		}
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "Error: tidal needs an interactive terminal\n")
		os.Exit(1)
	}

	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so the process log goes to a file.
	logFile := setupLogging(cfg.LogPath)
	if logFile != nil {
		defer logFile.Close()
	}

	st := store.New()
	client := api.NewClient(cfg.ServerURL)

	opts := engine.Options{}
	if cfg.GenerationTimeoutSecs > 0 {
		opts.GenerationTimeout = time.Duration(cfg.GenerationTimeoutSecs) * time.Second
	} else {
		opts.GenerationTimeout = -1
	}

	var arc *archive.Archive
	if cfg.ArchivePath != "" {
		arc, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			log.Printf("archive disabled: %v", err)
		} else {
			opts.Archiver = arc
			defer arc.Close()
		}
	}

	eng := engine.New(st, client, opts)
	eng.AttachTransport(transport.New(cfg.StreamURL(), eng))

	// Watch the config file so edits are picked up on the next start and
	// noted in the log. Server and archive changes need a restart.
	watcher, err := config.NewWatcher(configPath, func(_ *config.Config) {
		log.Printf("config reloaded from %s", configPath)
	})
	if err != nil {
		log.Printf("config watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	theme := styles.NewThemeWithPreference(cfg.Theme)
	m := chat.New(eng, st, theme)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running tidal: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging redirects the standard logger to path. Returns the open file,
// or nil when the file cannot be created (logs are discarded in that case).
func setupLogging(path string) *os.File {
	if path == "" {
		log.SetOutput(os.Stderr)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	return f
}

func printUsage() {
	fmt.Println(`tidal - terminal client for streaming chat

Usage:
  tidal [flags]

Flags:
  -c, --config <path>   use an alternate config file
  -v, --version         print version and exit
  -h, --help            show this help`)
}
