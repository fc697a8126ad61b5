package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var ingestBatchCmd = &cobra.Command{
	Use:   "batch TYPE PAYLOAD...",
	Short: "Submit a batch job (folder-import, url-crawl, reprocess, ...)",
	Long: `Submit a batch job against one or more payloads.

Examples:
  ingestctl ingest batch folder-import /data/docs/a.pdf /data/docs/b.pdf
  ingestctl ingest batch url-crawl https://example.com/page1 https://example.com/page2`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngestBatch,
}

func init() {
	ingestBatchCmd.Flags().Int("concurrency", 4, "max concurrent batch workers")
	ingestBatchCmd.Flags().Bool("dynamic-concurrency", true, "scale concurrency to available resources")
	ingestBatchCmd.Flags().Bool("continue-on-error", true, "keep processing remaining items after a failure")
	ingestBatchCmd.Flags().Duration("item-timeout", 60*time.Second, "per-item timeout")
}

type batchItemRequest struct {
	Priority int    `json:"priority"`
	Payload  string `json:"payload"`
}

type batchOptionsRequest struct {
	MaxConcurrency     int           `json:"MaxConcurrency"`
	DynamicConcurrency bool          `json:"DynamicConcurrency"`
	ContinueOnError    bool          `json:"ContinueOnError"`
	ItemTimeout        time.Duration `json:"ItemTimeout"`
}

type processBatchRequest struct {
	Type    string              `json:"type"`
	Items   []batchItemRequest  `json:"items"`
	Options batchOptionsRequest `json:"options"`
}

func runIngestBatch(cmd *cobra.Command, args []string) error {
	jobType := args[0]
	payloads := args[1:]

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	dynamic, _ := cmd.Flags().GetBool("dynamic-concurrency")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
	itemTimeout, _ := cmd.Flags().GetDuration("item-timeout")

	items := make([]batchItemRequest, len(payloads))
	for i, p := range payloads {
		items[i] = batchItemRequest{Payload: p}
	}

	req := processBatchRequest{
		Type:  jobType,
		Items: items,
		Options: batchOptionsRequest{
			MaxConcurrency:     concurrency,
			DynamicConcurrency: dynamic,
			ContinueOnError:    continueOnError,
			ItemTimeout:        itemTimeout,
		},
	}

	var result map[string]any
	if err := doRequest(cmd, "POST", "/v1/batch", req, &result); err != nil {
		return err
	}
	printJSON(result)
	fmt.Printf("submitted job %v (batch %v) with %d item(s)\n", result["jobId"], result["batchId"], len(items))
	return nil
}
