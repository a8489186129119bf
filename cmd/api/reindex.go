package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"teamworks/api/internal/search"
)

func reindexCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Push every project and task into Meilisearch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.MeiliURL == "" {
				return errors.New("MEILI_URL is not set")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			dataStore, err := openStore(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer dataStore.Close(context.Background())

			searchService, closeSearch := newSearch(cfg, dataStore, logger)
			defer closeSearch()

			deadline := time.Now().Add(wait)
			for !searchService.EngineHealthy() && time.Now().Before(deadline) {
				time.Sleep(time.Second)
			}
			projects, tasks, err := searchService.Reindex(ctx, dataStore)
			if errors.Is(err, search.ErrEngineUnavailable) {
				return fmt.Errorf("meilisearch at %s is not healthy", cfg.MeiliURL)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d projects and %d tasks\n", projects, tasks)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for Meilisearch to become healthy")
	return cmd
}
