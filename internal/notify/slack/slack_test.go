package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/quietnews/internal/news"
)

func TestNotify_PostsToWebhook(t *testing.T) {
	t.Parallel()

	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		var m map[string]any
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decode body: %v", err)
		}
		got <- m
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	d := &news.DigestRow{
		ID:         "d1",
		RunID:      "01JN123",
		CreatedAt:  time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
		DigestText: "צפון: פתוח. פיקוד העורף עדכן הנחיות.",
		Sources:    []string{"https://www.ynet.co.il/a1", "https://www.kan.org.il/b1"},
	}

	if err := n.Notify(context.Background(), d); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	m := <-got
	blocks, ok := m["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}
	// header, digest, divider, sources, context
	if len(blocks) != 5 {
		t.Errorf("blocks count = %d, want 5", len(blocks))
	}

	raw, _ := json.Marshal(m)
	s := string(raw)
	for _, want := range []string{"ynet.co.il", "kan.org.il", "01JN123", "2026-02-26 14:23 UTC", "\U0001f7e1"} {
		if !strings.Contains(s, want) {
			t.Errorf("payload missing %q", want)
		}
	}
}

func TestNotify_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", nil)
	if err := n.Notify(context.Background(), &news.DigestRow{}); err != nil {
		t.Errorf("Notify with empty URL = %v, want nil", err)
	}
}

func TestNotify_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	err := New(srv.URL, log.Nop()).Notify(context.Background(), &news.DigestRow{DigestText: "x"})
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "invalid_token") {
		t.Errorf("error = %q, want status and body", err)
	}
}

func TestBuildMessage_Placeholder(t *testing.T) {
	t.Parallel()

	m := buildMessage(&news.DigestRow{DigestText: news.Placeholder, Sources: []string{}})
	blocks := m["blocks"].([]map[string]any)
	// header, digest, context
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(blocks))
	}
	header := blocks[0]["text"].(map[string]any)["text"].(string)
	if !strings.Contains(header, "\U0001f7e2") {
		t.Errorf("header = %q, want green marker", header)
	}
}

func TestSourcesBlock_CapsLinks(t *testing.T) {
	t.Parallel()

	var sources []string
	for range maxSourceLinks + 3 {
		sources = append(sources, "https://example.org/x")
	}
	text := sourcesBlock(sources)["text"].(map[string]any)["text"].(string)
	if n := strings.Count(text, "<https://"); n != maxSourceLinks {
		t.Errorf("links = %d, want %d", n, maxSourceLinks)
	}
	if !strings.Contains(text, "ועוד 3") {
		t.Errorf("missing overflow note: %q", text)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii", "abcdef", 4, "abc…"},
		{"hebrew", "שלום עולם", 4, "שלו…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := truncate(tt.in, tt.limit)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Error("invalid utf-8")
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://www.ynet.co.il/a": "ynet.co.il",
		"https://kan.org.il/b":     "kan.org.il",
		"not a url":                "not a url",
	}
	for in, want := range tests {
		if got := hostOf(in); got != want {
			t.Errorf("hostOf(%q) = %q, want %q", in, got, want)
		}
	}
}
