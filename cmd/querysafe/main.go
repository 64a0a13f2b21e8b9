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
	"time"

	"github.com/poiesic/querysafe/config"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "querysafe",
		Usage: "Multi-tenant document question answering",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides the config file",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "querysafe.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to .env file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Data directory; overrides the config file",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Listen address; overrides the config file",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Upload documents to a chatbot and rebuild its index",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					requiredChatbotFlag(),
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Wait for the rebuild to finish",
						Value: true,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show chatbot status",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "chatbot",
						Aliases: []string{"b"},
						Usage:   "Only show this chatbot",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask a chatbot a question",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: []cli.Flag{
					requiredChatbotFlag(),
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "Continue an existing conversation",
					},
					&cli.BoolFlag{
						Name:  "show-matches",
						Usage: "Print the retrieved chunks",
					},
				},
			},
			{
				Name:   "conversations",
				Usage:  "List a chatbot's conversations, or show or delete one",
				Action: conversationsCommand,
				Flags: []cli.Flag{
					requiredChatbotFlag(),
					&cli.StringFlag{
						Name:  "id",
						Usage: "Show this conversation",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum messages to show",
						Value: 100,
					},
					&cli.BoolFlag{
						Name:  "delete",
						Usage: "Delete the conversation given by --id",
					},
				},
			},
			{
				Name:   "delete",
				Usage:  "Delete a chatbot with its documents, index and conversations",
				Action: deleteCommand,
				Flags:  []cli.Flag{requiredChatbotFlag()},
			},
			{
				Name:   "rebuild",
				Usage:  "Rebuild one chatbot, or every chatbot that needs it",
				Action: rebuildCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "chatbot",
						Aliases: []string{"b"},
						Usage:   "Chatbot to rebuild; omit to recover all",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Rebuild chatbots indexed with a different embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Rebuild every chatbot",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Maximum wait per chatbot",
						Value: 30 * time.Minute,
					},
				},
			},
		},
	}
}

func requiredChatbotFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "chatbot",
		Aliases:  []string{"b"},
		Usage:    "Chatbot (tenant) identifier",
		Required: true,
	}
}

// setup loads the configuration and installs the default logger.
func setup(c *cli.Context) error {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
