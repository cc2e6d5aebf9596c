package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/AlecAivazis/survey/v2"

	"podnote/internal/app"
	"podnote/internal/config"
	"podnote/internal/domain"
	"podnote/internal/logging"
	"podnote/internal/storage"
	"podnote/internal/tui"
)

func main() {
	serve := flag.Bool("serve", false, "run the HTTP API server instead of the wizard")
	discuss := flag.String("discuss", "", "ask a question about a published note and exit")
	exportState := flag.String("export-state", "", "write the saved wizard progress to a file and exit")
	resetState := flag.Bool("reset", false, "forget the saved wizard progress and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("failed to resolve home directory: %v", err)
	}

	baseDir := filepath.Join(home, ".podnote")
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		log.Fatalf("failed to create config directory: %v", err)
	}

	logPath := filepath.Join(baseDir, "podnote.log")
	logging.Configure(logPath)

	if err := config.LoadDotEnv(filepath.Join(baseDir, ".env")); err != nil {
		log.Fatalf("failed to load environment file: %v", err)
	}

	configPath := filepath.Join(baseDir, "config.yaml")
	ensure := config.Ensure
	if *serve {
		ensure = config.EnsureHeadless
	}
	cfg, err := ensure(ctx, configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *serve {
		logging.Prefix("server")
		if err := runServer(ctx, cfg, baseDir); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	logging.Prefix("wizard")

	dbPath := filepath.Join(baseDir, "app.db")
	db, err := storage.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	application := app.New(cfg, configPath, db)
	defer application.Close()

	if *exportState != "" && *resetState {
		fmt.Fprintln(os.Stderr, "error: --export-state and --reset cannot be used together")
		os.Exit(1)
	}

	if *exportState != "" {
		if err := application.ExportState(ctx, *exportState); err != nil {
			fmt.Fprintf(os.Stderr, "error exporting state: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "Saved progress written to %s.\n", *exportState)
		return
	}

	if *resetState {
		if err := application.ResetState(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error resetting state: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, "Saved progress cleared.")
		return
	}

	if *discuss != "" {
		if err := runDiscussion(ctx, application, *discuss); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := tui.Run(ctx, application); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runDiscussion(ctx context.Context, application *app.App, slug string) error {
	list, err := application.Discussions(ctx, slug)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, app.FormatDiscussions(list))

	participated, err := application.Participated(ctx, slug)
	if err != nil {
		return err
	}
	if participated {
		fmt.Fprintln(os.Stdout, "You have already asked a question about this note.")
		return nil
	}

	var question string
	prompt := &survey.Input{Message: "Your question:"}
	if err := survey.AskOne(prompt, &question, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, "\n")
	_, err = application.Discuss(ctx, slug, question, func(chunk string) error {
		_, werr := fmt.Fprint(os.Stdout, chunk)
		return werr
	})
	fmt.Fprint(os.Stdout, "\n")
	if errors.Is(err, domain.ErrAlreadyParticipated) {
		fmt.Fprintln(os.Stdout, "You have already asked a question about this note.")
		return nil
	}
	return err
}
