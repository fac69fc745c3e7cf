// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/ragrouter"
	"github.com/poiesic/ragrouter/config"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/indexing"
	"github.com/poiesic/ragrouter/intent"
	"github.com/poiesic/ragrouter/storage/yamlfile"
	"github.com/urfave/cli/v2"
)

// opener builds a router from a loaded configuration.
type opener func(ctx context.Context, cfg *config.Config) (*ragrouter.Router, error)

func openDefault(ctx context.Context, cfg *config.Config) (*ragrouter.Router, error) {
	return ragrouter.Open(ctx, cfg)
}

func main() {
	if err := newApp(openDefault).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(open opener) *cli.App {
	withRouter := func(fn func(c *cli.Context, r *ragrouter.Router) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			r, err := open(c.Context, cfg)
			if err != nil {
				return fmt.Errorf("failed to open router: %w", err)
			}
			defer r.Close()
			return fn(c, r)
		}
	}

	return &cli.App{
		Name:  "ragrouter",
		Usage: "Intent-aware multi-channel retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "ragrouter.yaml",
				EnvVars: []string{"RAGROUTER_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Manage the configuration file",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Write the default configuration",
						Action: configInitCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite an existing file",
							},
						},
					},
				},
			},
			{
				Name:  "intents",
				Usage: "Manage the intent tree",
				Subcommands: []*cli.Command{
					{
						Name:      "import",
						Usage:     "Import intent nodes from a YAML file",
						ArgsUsage: "<intents.yaml>",
						Action:    withRouter(intentsImportCommand),
					},
					{
						Name:   "list",
						Usage:  "Print the intent tree",
						Action: withRouter(intentsListCommand),
					},
				},
			},
			{
				Name:      "index",
				Usage:     "Add pre-cut chunks to a collection and the keyword index",
				ArgsUsage: "<chunks.yaml>",
				Action:    withRouter(indexCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Target vector collection",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks embedded per request",
						Value: 32,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per batch",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:      "retrieve",
				Usage:     "Retrieve grouped context for a question",
				ArgsUsage: "<query>",
				Action:    withRouter(retrieveCommand),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of chunks to return (0 uses the configured default)",
					},
					&cli.StringSliceFlag{
						Name:  "sub",
						Usage: "Sub-question to search alongside the query (repeatable)",
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func configInitCommand(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

func intentsImportCommand(c *cli.Context, r *ragrouter.Router) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("intent file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	nodes, err := yamlfile.Parse(data)
	if err != nil {
		return err
	}
	if err := r.ImportIntents(c.Context, nodes...); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Imported %d intent nodes\n", len(nodes))
	return nil
}

func intentsListCommand(c *cli.Context, r *ragrouter.Router) error {
	tree, err := r.Catalog().Snapshot()
	if err != nil {
		return err
	}
	if tree.Len() == 0 {
		fmt.Fprintln(c.App.Writer, "No intents")
		return nil
	}
	printNodes(c.App.Writer, tree, tree.Roots(), 0)
	return nil
}

func printNodes(w io.Writer, tree *intent.Tree, nodes []*core.IntentNode, depth int) {
	for _, n := range nodes {
		line := fmt.Sprintf("%s%s [%s]", strings.Repeat("  ", depth), n.Name, n.Code)
		if n.Collection != "" {
			line += " -> " + n.Collection
		}
		if !n.Enabled {
			line += " (disabled)"
		}
		fmt.Fprintln(w, line)
		printNodes(w, tree, tree.Children(n.Code), depth+1)
	}
}

func indexCommand(c *cli.Context, r *ragrouter.Router) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("chunk file is required")
	}
	chunks, err := indexing.ReadChunkFile(path)
	if err != nil {
		return err
	}

	loader, err := indexing.NewLoader(r, &indexing.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("batch-size"),
		MaxAttempts:    c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}, c.App.ErrWriter)
	if err != nil {
		return err
	}

	collection := c.String("collection")
	total, err := loader.Load(c.Context, collection, chunks)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Indexed %d chunks into %s\n", total, collection)
	return nil
}

func retrieveCommand(c *cli.Context, r *ragrouter.Router) error {
	query := strings.Join(c.Args().Slice(), " ")
	result, err := r.Retrieve(c.Context, query, c.Int("top-k"), c.StringSlice("sub")...)
	if err != nil {
		return err
	}
	printResult(c.App.Writer, r, result)
	return nil
}

func printResult(w io.Writer, r *ragrouter.Router, result *core.RetrievalResult) {
	fmt.Fprintf(w, "Request: %s\n", result.RequestID)
	if len(result.Intents) == 0 {
		fmt.Fprintln(w, "Intents: none")
	} else {
		fmt.Fprintln(w, "Intents:")
		tree, _ := r.Catalog().Snapshot()
		for _, ns := range result.Intents {
			label := ns.Node.Name
			if tree != nil {
				label = tree.PathString(ns.Node.Code)
			}
			fmt.Fprintf(w, "  %s [%s] %.2f\n", label, ns.Node.Code, ns.Score)
		}
	}
	for _, ev := range result.Degraded {
		fmt.Fprintf(w, "Degraded: %s %s: %s\n", ev.Kind, ev.Source, ev.Err)
	}
	fmt.Fprintln(w)
	if result.IsEmpty() {
		fmt.Fprintln(w, "No relevant knowledge found")
		return
	}
	fmt.Fprint(w, result.Context)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
