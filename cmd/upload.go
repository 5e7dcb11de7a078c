package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/pkg/extractapi"
)

var (
	uploadCaseID string
	uploadServer string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a document to a running server and wait for the extraction",
	Long:  "Sends the document to POST /upload/async and polls the task until it completes or fails. The server does the heavy lifting; this command only needs client configuration.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("client"); err != nil {
			return err
		}
		baseURL := uploadServer
		if baseURL == "" {
			baseURL = cfg.Client.BaseURL
		}

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open document")
		}
		defer f.Close() //nolint:errcheck

		client := extractapi.NewClient(baseURL)
		acc, err := client.UploadAsync(ctx, extractapi.UploadRequest{
			CaseID:   uploadCaseID,
			Filename: filepath.Base(args[0]),
			Body:     f,
		})
		if err != nil {
			return eris.Wrap(err, "upload")
		}

		zap.L().Info("upload accepted",
			zap.String("task_id", acc.TaskID),
			zap.String("case_id", acc.CaseID),
		)

		status, err := extractapi.PollTask(ctx, client, acc.TaskID,
			extractapi.WithPollInterval(time.Duration(cfg.Client.PollIntervalMS)*time.Millisecond),
			extractapi.WithMaxAttempts(cfg.Client.MaxPollAttempts),
		)
		if err != nil {
			if errors.Is(err, extractapi.ErrPollExhausted) {
				return eris.Errorf("task %s is still %s after %d polls; check its status later",
					status.TaskID, status.State, cfg.Client.MaxPollAttempts)
			}
			return eris.Wrap(err, "poll task")
		}

		if status.State == "failed" {
			if status.Error != nil {
				return eris.Errorf("extraction failed: %s: %s", status.Error.Kind, status.Error.Message)
			}
			return eris.New("extraction failed")
		}

		zap.L().Info("extraction complete",
			zap.String("case_id", status.CaseID),
			zap.Int("progress", status.Progress),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status.Result)
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadCaseID, "case-id", "", "case identifier (generated by the server when omitted)")
	uploadCmd.Flags().StringVar(&uploadServer, "server", "", "server base URL (default from config)")
	rootCmd.AddCommand(uploadCmd)
}
