package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxelware/aura/pkg/provider/llm"
)

const (
	tavilyEndpoint    = "https://api.tavily.com/search"
	searchMaxResults  = 5
	searchHTTPTimeout = 15 * time.Second
)

// WebSearchTool answers factual queries via the Tavily search API.
type WebSearchTool struct {
	APIKey string

	// BaseURL overrides the Tavily endpoint, for tests.
	BaseURL string

	// Client defaults to a 15-second-timeout client.
	Client *http.Client
}

var _ Tool = (*WebSearchTool)(nil)

func (*WebSearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for current information.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query"},
			},
			"required": []string{"query"},
		},
	}
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *WebSearchTool) Invoke(ctx context.Context, _ ToolContext, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("web_search: bad arguments: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", errors.New("web_search: query must not be empty")
	}
	if t.APIKey == "" {
		return "", errors.New("web_search: no API key configured")
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:     t.APIKey,
		Query:      in.Query,
		MaxResults: searchMaxResults,
	})
	if err != nil {
		return "", fmt.Errorf("web_search: encode request: %w", err)
	}

	endpoint := t.BaseURL
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("web_search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: searchHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("web_search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("web_search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("web_search: decode response: %w", err)
	}

	var sb strings.Builder
	if out.Answer != "" {
		sb.WriteString(out.Answer)
		sb.WriteString("\n\n")
	}
	for i, r := range out.Results {
		fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	if sb.Len() == 0 {
		return "no results", nil
	}
	return strings.TrimSpace(sb.String()), nil
}
