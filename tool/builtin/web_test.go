package builtin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebFetchExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><script>ignored()</script><style>.x{}</style></head>
<body><h1>Title</h1><p>First paragraph.</p><ul><li>Item</li></ul></body></html>`)
	}))
	defer srv.Close()

	out, err := fetchHandler(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, want := range []string{"Title", "First paragraph.", "Item"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
	if strings.Contains(out, "ignored()") {
		t.Error("script content leaked into extracted text")
	}
}

func TestWebFetchTruncatesLongPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", strings.Repeat("a", 3*maxFetchBytes))
	}))
	defer srv.Close()

	out, err := fetchHandler(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) > maxFetchBytes {
		t.Errorf("output length = %d, want <= %d", len(out), maxFetchBytes)
	}
}

func TestWebFetchRejectsBadInput(t *testing.T) {
	if _, err := fetchHandler(context.Background(), map[string]any{"url": ""}); err == nil {
		t.Error("empty url must fail")
	}
	if _, err := fetchHandler(context.Background(), map[string]any{"url": "not a url"}); err == nil {
		t.Error("malformed url must fail")
	}
}

func TestWebFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := fetchHandler(context.Background(), map[string]any{"url": srv.URL}); err == nil {
		t.Error("404 must fail")
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	if _, err := searchHandler(context.Background(), map[string]any{"query": " "}); err == nil {
		t.Error("blank query must fail")
	}
}

func TestDefinitionsValidateArgs(t *testing.T) {
	search := WebSearch()
	if err := search.ValidateArgs(map[string]any{"query": "go"}); err != nil {
		t.Errorf("valid search args rejected: %v", err)
	}
	if err := search.ValidateArgs(map[string]any{"limit": 3}); err == nil {
		t.Error("missing query must fail validation")
	}
	if err := search.ValidateArgs(map[string]any{"query": "go", "limit": 50}); err == nil {
		t.Error("limit above maximum must fail validation")
	}

	fetch := WebFetch()
	if err := fetch.ValidateArgs(map[string]any{"url": "https://go.dev"}); err != nil {
		t.Errorf("valid fetch args rejected: %v", err)
	}
}
