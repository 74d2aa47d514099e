// internal/nlq/catalog/loader.go
package catalog

import (
	"context"
	"strings"

	"wapi-nlq/internal/common/config"
	apperrors "wapi-nlq/internal/common/errors"
	"wapi-nlq/internal/common/logger"
)

// Load builds the catalog named by cfg.Source. Any failure falls back to the
// default catalog, so the pipeline always has one to map intents with.
func Load(ctx context.Context, cfg config.CatalogConfig, grid config.GridConfig, live *LiveLoader, log logger.Logger) *Catalog {
	source := strings.ToLower(cfg.Source)

	var (
		c   *Catalog
		err error
	)
	switch source {
	case SourceFile:
		c, err = LoadFile(cfg.Path)
	case SourceLive:
		if live == nil {
			break
		}
		c, err = live.Load(ctx, grid)
	default:
		return Default()
	}

	if err != nil || c == nil {
		stdErr := apperrors.NewCatalogLoadFailedError(source, err)
		log.Warn("Falling back to default catalog", map[string]interface{}{
			"source":    source,
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
		return Default()
	}

	log.Info("Intent catalog loaded", map[string]interface{}{
		"source":  c.Source(),
		"intents": c.Len(),
	})
	return c
}
