//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"

	"github.com/aperez/cmb-readout/internal/config"
	"github.com/aperez/cmb-readout/internal/logger"
	"github.com/aperez/cmb-readout/internal/repository/record"
)

// OpenRecordRepository builds the record repository both binaries share,
// honoring a CLI backend override. The returned closer releases backend
// resources once the command finishes.
func OpenRecordRepository(cfg *config.Config, override string) (record.Repository, func(context.Context), error) {
	backend := cfg.Storage.Backend
	if override != "" {
		backend = override
	}

	switch backend {
	case "file":
		return record.NewFileRepository(cfg.Storage), func(context.Context) {}, nil
	case "sqlite":
		repo, err := record.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		closer := func(ctx context.Context) {
			if err := repo.Close(); err != nil {
				logger.WarnKV(ctx, "Failed to close record database", "error", err)
			}
		}

		return repo, closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
