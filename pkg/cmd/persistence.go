package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pulsehq/pulse-workflows/pkg/persistence"
	"github.com/pulsehq/pulse-workflows/pkg/persistence/file"
	"github.com/pulsehq/pulse-workflows/pkg/persistence/postgresql"
)

// NewPersistence picks the store from the database URL scheme. postgres://
// gets the relational store; anything else is treated as a directory for
// the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to set up postgres persistence: %w", err))
		}

		return persist
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
