package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func bearerToken(cmd *cobra.Command) string {
	token, _ := cmd.Flags().GetString("token")
	if token != "" {
		return token
	}
	return os.Getenv("INGESTCTL_TOKEN")
}

func serverURL(cmd *cobra.Command) string {
	url, _ := cmd.Flags().GetString("server")
	return url
}

// doRequest issues method against path on the server's REST surface, encoding
// body as JSON (when non-nil) and decoding the response into out (when
// non-nil). Non-2xx responses are surfaced as an error carrying the
// response's ingerrors-shaped JSON body.
func doRequest(cmd *cobra.Command, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, serverURL(cmd)+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := bearerToken(cmd); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printJSON(v any) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to format output: %v\n", err)
		return
	}
	fmt.Println(string(encoded))
}
