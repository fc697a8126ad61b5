package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show a batch job's status and item progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	var result map[string]any
	if err := doRequest(cmd, "GET", "/v1/batch/"+jobID, nil, &result); err != nil {
		return err
	}
	printJSON(result)
	return nil
}

var cancelCmd = &cobra.Command{
	Use:   "cancel JOB_ID",
	Short: "Cancel a running batch job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	if err := doRequest(cmd, "POST", "/v1/batch/"+jobID+"/cancel", nil, nil); err != nil {
		return err
	}
	fmt.Printf("cancelled job %s\n", jobID)
	return nil
}
