// Package cmd provides shared wiring helpers for the stratum binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stratumflow/stratum/pkg/persistence"
	"github.com/stratumflow/stratum/pkg/persistence/file"
	"github.com/stratumflow/stratum/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme.
// Anything that is not a postgres URL falls back to the file backend, which
// keeps local development dependency free.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)

	return parts[0]
}
