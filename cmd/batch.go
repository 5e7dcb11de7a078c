package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/juristech/process-extract/internal/model"
)

var (
	batchConcurrency int
	batchMock        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <urls.txt>",
	Short: "Extract a list of process documents",
	Long:  "Reads one document per line as url[,case_id], blank lines and # comments skipped, and extracts them concurrently. Lines without a case_id get a generated one.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open batch file")
		}
		items, err := parseBatchFile(f)
		_ = f.Close()
		if err != nil {
			return err
		}

		env, err := initService(ctx, batchMock)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}

		return processBatch(ctx, items, concurrency, func(ctx context.Context, item batchItem) (*model.CaseRecord, error) {
			return env.Service.ExtractFromURL(ctx, item.URL, item.CaseID)
		})
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent extractions (default from config)")
	batchCmd.Flags().BoolVar(&batchMock, "mock", false, "use canned extraction data instead of the model")
	rootCmd.AddCommand(batchCmd)
}

// batchItem is one document to extract.
type batchItem struct {
	URL    string
	CaseID string
}

// parseBatchFile reads url[,case_id] lines.
func parseBatchFile(r io.Reader) ([]batchItem, error) {
	var items []batchItem
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		url, caseID, _ := strings.Cut(raw, ",")
		url = strings.TrimSpace(url)
		caseID = strings.TrimSpace(caseID)
		if url == "" {
			return nil, eris.Errorf("batch file line %d: missing url", line)
		}
		if caseID == "" {
			caseID = model.GenerateCaseID()
		}
		items = append(items, batchItem{URL: url, CaseID: caseID})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read batch file")
	}
	return items, nil
}

// extractFunc is the callback signature for extracting one batch item.
type extractFunc func(ctx context.Context, item batchItem) (*model.CaseRecord, error)

// processBatch extracts items concurrently. Individual failures are logged
// and counted without aborting the batch.
func processBatch(ctx context.Context, items []batchItem, concurrency int, run extractFunc) error {
	if len(items) == 0 {
		zap.L().Info("batch file has no documents")
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(items)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, item := range items {
		g.Go(func() error {
			log := zap.L().With(zap.String("case_id", item.CaseID), zap.String("url", item.URL))

			rec, err := run(gctx, item)
			if err != nil {
				failed.Add(1)
				log.Error("extraction failed", zap.Error(err))
				return nil // don't abort the batch on individual failure
			}

			succeeded.Add(1)
			log.Info("extraction complete",
				zap.Int("events", len(rec.Timeline)),
				zap.Int("evidence", len(rec.Evidence)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
