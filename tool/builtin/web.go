// Package builtin ships the gateway's stock tool definitions.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sweetpotato0/modelgate/tool"
)

const searchEndpoint = "https://html.duckduckgo.com/html/"

// maxFetchBytes truncates extracted page text handed back to the model.
const maxFetchBytes = 8192

var httpClient = &http.Client{Timeout: 20 * time.Second}

// WebSearch returns the webSearch tool definition: queries the DuckDuckGo
// HTML endpoint and extracts result titles and links.
func WebSearch() *tool.Definition {
	return &tool.Definition{
		Name:        "webSearch",
		Description: "Search the web and return the top result titles with links.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 10}
			},
			"required": ["query"]
		}`),
		Handler: searchHandler,
	}
}

// WebFetch returns the webFetch tool definition: fetches a page and extracts
// readable text.
func WebFetch() *tool.Definition {
	return &tool.Definition{
		Name:        "webFetch",
		Description: "Fetch a web page and return its readable text content.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "Page URL to fetch"}
			},
			"required": ["url"]
		}`),
		Handler: fetchHandler,
	}
}

func searchHandler(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query cannot be empty")
	}
	limit := 5
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse search results: %w", err)
	}

	var out []string
	doc.Find(".result__a").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		href, _ := s.Attr("href")
		out = append(out, fmt.Sprintf("%d. %s (%s)", i+1, strings.TrimSpace(s.Text()), href))
		return true
	})
	if len(out) == 0 {
		return "no results", nil
	}
	return strings.Join(out, "\n"), nil
}

func fetchHandler(ctx context.Context, args map[string]any) (string, error) {
	target, _ := args["url"].(string)
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("url cannot be empty")
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	doc.Find("script,style,noscript").Remove()

	var parts []string
	doc.Find("h1,h2,h3,p,li,pre").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	text := strings.Join(parts, "\n")
	if len(text) > maxFetchBytes {
		text = text[:maxFetchBytes]
	}
	if text == "" {
		return "page had no extractable text", nil
	}
	return text, nil
}
