// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command logpipe runs the logpipe daemon: it loads an engine
// configuration, builds the source/destination graph, and serves it
// until terminated, reloading on SIGHUP the way the teacher's
// nbackup-agent daemon does.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/logpipe/internal/mainloop"
)

func main() {
	configPath := flag.String("config", "/etc/logpipe/engine.yaml", "path to engine config file")
	flag.Parse()

	engine, err := mainloop.New(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logpipe: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				if err := engine.Reload(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "logpipe: reload failed: %v\n", err)
				}
			case syscall.SIGTERM, syscall.SIGINT:
				cancel()
				return
			}
		}
	}()

	if err := engine.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logpipe: %v\n", err)
		os.Exit(1)
	}
}
