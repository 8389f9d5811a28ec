// Command wikiq-cli is a thin HTTP client for wikiqd's search endpoint.
//
// Usage:
//
//	wikiq-cli query "deploy runbook" --server http://localhost:8080
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Query QueryCmd `cmd:"" help:"Run a search query against a wikiqd server."`

	Server  string        `help:"wikiqd base URL." default:"http://localhost:8080"`
	Timeout time.Duration `help:"Request timeout." default:"30s"`
}

// QueryCmd sends one search request and prints the rendered report.
type QueryCmd struct {
	Text  string `arg:"" help:"Query text."`
	Space string `help:"Restrict results to one knowledge-base space."`
	Limit int    `help:"Maximum results to return."`
}

type searchRequest struct {
	Query string `json:"query"`
	Space string `json:"space,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Report string `json:"report"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *QueryCmd) Run(cli *CLI) error {
	body, err := json.Marshal(searchRequest{Query: c.Text, Space: c.Space, Limit: c.Limit})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	client := &http.Client{Timeout: cli.Timeout}
	resp, err := client.Post(cli.Server+"/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("calling %s: %w", cli.Server, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Println(result.Report)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wikiq-cli"),
		kong.Description("Query client for the wikiqd search server."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
