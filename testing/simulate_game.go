// Command simulate_game plays a whole adventure against the real game master,
// with a second model standing in for the player.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tatianab/adventure-gm/internal/config"
	"github.com/tatianab/adventure-gm/internal/engine"
	"github.com/tatianab/adventure-gm/internal/logger"
	"github.com/tatianab/adventure-gm/internal/models"
	"github.com/tatianab/adventure-gm/internal/parser"
	"github.com/tatianab/adventure-gm/internal/scene"
	"github.com/tatianab/adventure-gm/internal/session"
	"github.com/urfave/cli/v2"
)

const playerInstruction = `You are a player in a text adventure run by a game master.
When asked for a theme, reply with a short, creative theme only (e.g. "steampunk underwater city").
When the game master asks questions, answer them briefly.
Otherwise reply with your next action in one or two sentences. Never add commentary.`

func main() {
	app := &cli.App{
		Name:  "simulate_game",
		Usage: "Let a model play an adventure end to end",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Load configuration from `FILE`"},
			&cli.IntFlag{Name: "turns", Value: 10, Usage: "Number of player turns after the game starts"},
			&cli.StringFlag{Name: "save", Usage: "Export the transcript under this `NAME`"},
		},
		Action: simulate,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func simulate(c *cli.Context) error {
	ctx := c.Context
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logger.New(zerolog.ConsoleWriter{Out: os.Stderr}, zerolog.WarnLevel)

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

	trigger := scene.NewTrigger(eng, scene.Options{StyleSuffix: prompts.ImageStyle, Dir: cfg.ImageDir, Logger: log})
	defer trigger.Wait()

	sess := session.New(eng, trigger, session.Options{
		Prompts: prompts,
		Parser:  parser.New(log, cfg.LenientPayloads),
		Logger:  log,
	})

	fmt.Println("--- Step 1: Connecting to the game master ---")
	if err := sess.Initialize(ctx); err != nil {
		return describe(err)
	}
	printLast(sess)

	player, err := eng.StartChat(ctx, playerInstruction)
	if err != nil {
		return fmt.Errorf("starting player chat: %w", err)
	}

	fmt.Println("--- Step 2: Choosing a theme ---")
	theme, err := ask(ctx, player, "Choose a theme for our adventure.")
	if err != nil {
		return err
	}
	fmt.Printf("Player chose theme: %s\n\n", theme)
	if err := sess.SubmitTheme(ctx, theme); err != nil {
		return describe(err)
	}
	printLast(sess)

	fmt.Println("--- Step 3: Playing ---")
	turns := c.Int("turns")
	for turn := 1; turn <= turns; turn++ {
		snap := sess.Snapshot()
		fmt.Printf("--- Turn %d (%s) ---\n", turn, snap.Phase)

		action, err := ask(ctx, player, lastNarrative(snap.Messages))
		if err != nil {
			return err
		}
		fmt.Printf("Player: %s\n", action)

		if err := sess.SendMessage(ctx, action); err != nil {
			fmt.Println(describe(err))
			continue
		}
		printLast(sess)
		printState(sess.Snapshot())
	}

	if name := c.String("save"); name != "" {
		path, err := sess.Transcript().Export(cfg.SaveDir, name)
		if err != nil {
			return err
		}
		fmt.Printf("Transcript saved to %s\n", path)
	}
	return nil
}

func ask(ctx context.Context, player engine.Chat, prompt string) (string, error) {
	reply, err := player.Send(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("asking player: %w", err)
	}
	// The player sometimes echoes a state block; only its words matter.
	return strings.TrimSpace(parser.Parse(reply.Text).Narrative), nil
}

func describe(err error) error {
	var serr *session.Error
	if errors.As(err, &serr) {
		return errors.New(serr.UserMessage())
	}
	return err
}

func printLast(s *session.Session) {
	fmt.Printf("GM: %s\n\n", lastNarrative(s.Snapshot().Messages))
}

func printState(snap session.Snapshot) {
	if snap.State == nil {
		fmt.Printf("[%s]\n\n", snap.View)
		return
	}
	st := snap.State.PlayerStatus
	fmt.Printf("Scene: %s\nLocation: %s\nObjective: %s\nInventory: %v\n\n",
		snap.State.SceneSummary, st.Location, st.Objective, st.Inventory)
}

func lastNarrative(msgs []models.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleModel {
			return msgs[i].Text
		}
	}
	return ""
}
