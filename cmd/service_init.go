package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/juristech/process-extract/internal/document"
	"github.com/juristech/process-extract/internal/extract"
	"github.com/juristech/process-extract/internal/fetcher"
	"github.com/juristech/process-extract/internal/pipeline"
	"github.com/juristech/process-extract/internal/store"
	"github.com/juristech/process-extract/internal/task"
	anthropicpkg "github.com/juristech/process-extract/pkg/anthropic"
)

// serviceEnv holds the initialized store and extraction service needed by
// the serve/extract/batch commands.
type serviceEnv struct {
	Store    store.Store
	Registry *task.Registry
	Temp     *document.TempStore
	Service  *pipeline.Service
}

// Close drains the worker queue and releases the store.
func (se *serviceEnv) Close() {
	if se.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		se.Service.Shutdown(ctx)
	}
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "process_extract.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initService sets up the store, document handling, the model client and the
// worker queue, and builds the extraction Service. Callers should defer
// env.Close(). With mock set, extraction is served by canned data and no
// model key is needed.
func initService(ctx context.Context, mock bool) (*serviceEnv, error) {
	mode := "extract"
	if mock {
		mode = "serve"
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   cfg.Download.UserAgent,
		Timeout:     time.Duration(cfg.Download.TimeoutSecs) * time.Second,
		MaxRetries:  cfg.Download.MaxRetries,
		MaxBytes:    cfg.Upload.MaxSizeBytes,
		RatePerHost: rate.Limit(cfg.Download.RatePerHost),
		Burst:       cfg.Download.Burst,
	})
	ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout:  time.Duration(cfg.Download.TimeoutSecs) * time.Second,
		MaxBytes: cfg.Upload.MaxSizeBytes,
	})

	validator := document.NewValidator(document.ValidatorOptions{
		MaxSizeBytes:     cfg.Upload.MaxSizeBytes,
		AllowedMIMETypes: cfg.Upload.AllowedMIMETypes,
	})

	temp, err := document.NewTempStore(cfg.Upload.TempDir, time.Duration(cfg.Upload.TempMaxAgeSecs)*time.Second)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init temp store")
	}

	registry := task.NewRegistry(time.Duration(cfg.Tasks.RetentionSecs) * time.Second)

	var extractor extract.Extractor
	if mock {
		extractor = &extract.MockExtractor{}
	} else {
		extractor = extract.NewAnthropicExtractor(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Extraction, cfg.Anthropic)
	}

	svc := pipeline.NewService(cfg, st, registry, fetcher.NewClient(httpFetcher, ftpFetcher), validator, temp, extractor)

	return &serviceEnv{
		Store:    st,
		Registry: registry,
		Temp:     temp,
		Service:  svc,
	}, nil
}
