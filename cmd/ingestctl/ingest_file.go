package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ingestFileCmd = &cobra.Command{
	Use:   "file PATH",
	Short: "Ingest a single file's content",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestFile,
}

func init() {
	ingestFileCmd.Flags().String("source", "", "source label (defaults to the file path)")
	ingestFileCmd.Flags().String("title", "", "content title")
}

type processContentRequest struct {
	Source      string `json:"source"`
	ContentType string `json:"contentType"`
	Text        string `json:"text"`
	FilePath    string `json:"filePath"`
	Title       string `json:"title"`
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	source, _ := cmd.Flags().GetString("source")
	if source == "" {
		source = path
	}
	title, _ := cmd.Flags().GetString("title")

	req := processContentRequest{
		Source:   source,
		Text:     string(data),
		FilePath: path,
		Title:    title,
	}

	var result map[string]any
	if err := doRequest(cmd, "POST", "/v1/content", req, &result); err != nil {
		return err
	}
	printJSON(result)
	return nil
}
