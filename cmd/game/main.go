package main

import (
	"fmt"
	"os"

	"github.com/tatianab/adventure-gm/internal/config"
	"github.com/tatianab/adventure-gm/internal/engine"
	"github.com/tatianab/adventure-gm/internal/logger"
	"github.com/tatianab/adventure-gm/internal/parser"
	"github.com/tatianab/adventure-gm/internal/scene"
	"github.com/tatianab/adventure-gm/internal/session"
	"github.com/tatianab/adventure-gm/internal/tui"
	"github.com/urfave/cli/v2"
)

const version = "0.2.0"

func main() {
	app := &cli.App{
		Name:    "adventure",
		Usage:   "Play a text adventure run by an AI game master",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"ADVENTURE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to `FILE`",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Minimum log `LEVEL` (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "image-dir",
				Usage: "Also write scene images to `DIR`",
			},
			&cli.StringFlag{
				Name:  "save-dir",
				Usage: "Write /save transcripts under `DIR`",
			},
			&cli.BoolFlag{
				Name:  "lenient",
				Usage: "Try to repair malformed game state payloads",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlags(c, cfg)

	log, closer, err := logger.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	prompts, err := engine.LoadPrompts()
	if err != nil {
		return err
	}

	eng := engine.NewEngine(engine.Options{
		APIKey:        cfg.GeminiAPIKey,
		ChatModel:     cfg.ChatModel,
		ImageModel:    cfg.ImageModel,
		ImageEndpoint: cfg.ImageEndpoint,
		Logger:        log,
	})
	defer eng.Close()

	trigger := scene.NewTrigger(eng, scene.Options{
		StyleSuffix: prompts.ImageStyle,
		Dir:         cfg.ImageDir,
		Logger:      log,
	})
	defer trigger.Wait()

	sess := session.New(eng, trigger, session.Options{
		Prompts: prompts,
		Parser:  parser.New(log, cfg.LenientPayloads),
		Logger:  log,
	})

	log.Info().Str("version", version).Str("chat_model", cfg.ChatModel).Msg("starting")
	if err := tui.Run(sess, tui.Options{
		SaveDir:      cfg.SaveDir,
		ImageUpdates: trigger.Updates(),
		Logger:       log,
	}); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

// applyFlags lets explicit flags win over the file and environment.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("image-dir") {
		cfg.ImageDir = c.String("image-dir")
	}
	if c.IsSet("save-dir") {
		cfg.SaveDir = c.String("save-dir")
	}
	if c.IsSet("lenient") {
		cfg.LenientPayloads = c.Bool("lenient")
	}
}
