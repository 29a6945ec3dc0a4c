package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/access-cli/internal/dataset"
	"github.com/sells-group/access-cli/internal/export"
	"github.com/sells-group/access-cli/internal/fetcher"
	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/store"
)

// initStore opens the configured run store and applies its schema.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newLoader returns a dataset loader that downloads http(s) and ftp inputs
// with the configured fetchers.
func newLoader() *dataset.Loader {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	f := &fetcher.SchemeFetcher{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:     cfg.Fetch.UserAgent,
			Timeout:       timeout,
			MaxRetries:    cfg.Fetch.MaxRetries,
			RatePerSecond: cfg.Fetch.RatePerSecond,
			Burst:         cfg.Fetch.Burst,
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	}
	return dataset.NewLoader(f, cfg.Pipeline.TempDir)
}

// writeOutput writes tbl to path, or to stdout in format when path is empty.
func writeOutput(out io.Writer, path string, tbl *frame.Table, format string) error {
	if path != "" {
		return export.WriteFile(path, tbl)
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	return export.Write(out, tbl, f)
}

// createOutput opens path for writing, or returns stdout when path is empty.
func createOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path) //nolint:gosec // operator-supplied output path
	if err != nil {
		return nil, eris.Wrapf(err, "create %s", path)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
