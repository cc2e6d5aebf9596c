package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"podnote/internal/config"
	"podnote/internal/contentstore"
	"podnote/internal/discussion"
	"podnote/internal/itunes"
	"podnote/internal/llm"
	"podnote/internal/notes"
	"podnote/internal/podcast"
	"podnote/internal/server"
	"podnote/internal/storage"
	"podnote/internal/transcribe"
)

func runServer(ctx context.Context, cfg config.Config, baseDir string) error {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var content contentstore.Store
	switch cfg.StoreBackend {
	case config.StoreGitHub:
		gh, err := contentstore.NewGitHub(contentstore.GitHubOptions{
			HTTPClient: httpClient,
			Token:      cfg.GitHubToken,
			Owner:      cfg.GitHubOwner,
			Repo:       cfg.GitHubRepo,
			Branch:     cfg.GitHubBranch,
		})
		if err != nil {
			return err
		}
		content = gh
	case config.StoreSQLite, "":
		db, err := storage.Open(filepath.Join(baseDir, "content.db"))
		if err != nil {
			return fmt.Errorf("open content database: %w", err)
		}
		defer db.Close()
		content = contentstore.NewSQLite(db)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	srv := server.New(server.Dependencies{
		Parser:                 podcast.New(httpClient, itunes.NewClient(httpClient, ""), cfg.UserAgent),
		Transcriber:            transcribe.NewService(transcribe.NewAssemblyAI(cfg.AssemblyAIKey), cfg.TranscribeLanguage),
		Streamer:               llm.New(cfg.LLMKey, cfg.LLMBaseURL, cfg.LLMModel),
		Publisher:              notes.NewPublisher(content, cfg.NotesDir, cfg.SaveAttempts),
		Discussions:            discussion.New(content, cfg.DiscussionsDir, cfg.SaveAttempts),
		Secret:                 cfg.PodcastSecret,
		ChatMaxMessages:        cfg.ChatMaxMessages,
		DiscussContextMessages: cfg.DiscussContextMessages,
	})
	return srv.Start(ctx, cfg.ListenAddr)
}
