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
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/kbingest/core"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	sourceTypeUsage := fmt.Sprintf("Source type (%s, %s, %s)",
		core.SourceTypeScraper, core.SourceTypeAPI, core.SourceTypeManualUpload)

	return &cli.App{
		Name:  "kbingest",
		Usage: "Ingest, reconcile and search a support knowledge base",
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
				Usage:   "Path to YAML config file",
				EnvVars: []string{"KBINGEST_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest one document from a file (- for stdin)",
				ArgsUsage: "FILE",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Document title (generated from the body if empty)"},
					&cli.StringFlag{Name: "url", Usage: "Source URL"},
					&cli.StringFlag{Name: "source-type", Usage: sourceTypeUsage, Value: string(core.SourceTypeManualUpload)},
					&cli.StringFlag{Name: "category", Usage: "Document category"},
					&cli.TimestampFlag{Name: "date", Usage: "Source publication date", Layout: "2006-01-02"},
				},
			},
			{
				Name:   "batch",
				Usage:  "Ingest every document listed in a JSONL manifest",
				Action: batchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "manifest",
						Aliases:  []string{"m"},
						Usage:    "JSONL file with one ingest request per line",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Documents processed at once (0 uses the config value)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 10,
					},
				},
			},
			{
				Name:   "orphans",
				Usage:  "Remove documents whose source URL is no longer published",
				Action: orphansCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "urls",
						Aliases:  []string{"u"},
						Usage:    "File listing every current URL, one per line",
						Required: true,
					},
					&cli.BoolFlag{Name: "dry-run", Usage: "Report orphans without removing them"},
					&cli.StringFlag{Name: "source-type", Usage: sourceTypeUsage, Value: string(core.SourceTypeScraper)},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show document and vector index statistics",
				Action: statsCommand,
			},
			{
				Name:      "search",
				Usage:     "Search indexed chunks",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "k", Usage: "Number of hits", Value: 5},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete one document and its chunks",
				ArgsUsage: "ID",
				Action:    deleteCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
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

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
