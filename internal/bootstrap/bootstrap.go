// Package bootstrap assembles the resolver, data source options and query
// engine from configuration. Binaries share it so the CLI and the API open
// datasets the same way.
package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fqdata/fqdata/internal/config"
	"github.com/fqdata/fqdata/internal/datasource"
	"github.com/fqdata/fqdata/internal/query"
	"github.com/fqdata/fqdata/internal/source"
	s3store "github.com/fqdata/fqdata/internal/storage/s3"
)

// Router returns a resolver for remote descriptors. s3:// descriptors only
// work when an object store endpoint is configured.
func Router(cfg config.Config, logger *slog.Logger) (*source.Router, error) {
	var objectStore *source.ObjectStoreFetcher
	if strings.TrimSpace(cfg.ObjectStore.Endpoint) != "" {
		store, err := s3store.New(s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		objectStore = &source.ObjectStoreFetcher{Store: store}
	}
	return source.NewRouter(source.NewHTTPFetcher(cfg.Dataset.FetchTimeout), objectStore, logger), nil
}

func DataSourceOptions(cfg config.Config, logger *slog.Logger) (datasource.Options, error) {
	dialect, err := datasource.DialectByName(cfg.Dataset.Engine)
	if err != nil {
		return datasource.Options{}, err
	}
	router, err := Router(cfg, logger)
	if err != nil {
		return datasource.Options{}, err
	}
	return datasource.Options{
		Resolver:     router,
		ForceRefresh: cfg.Dataset.ForceRefresh,
		CacheDir:     cfg.Dataset.CacheDir,
		CacheFile:    cfg.Dataset.CacheFile,
		Dialect:      dialect,
		Logger:       logger,
	}, nil
}

func Engine(cfg config.Config, logger *slog.Logger) *query.Engine {
	return query.NewEngine(cfg.Query.KeyColumn, cfg.Query.InsertBatchSize, cfg.Query.CleanupTimeout, logger)
}
