package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStreamRelaysFragments(t *testing.T) {
	var gotAuth, gotTitle string
	var gotBody completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL + "/", APIKey: "test-key", SiteName: "Rojo Studio"})
	var fragments []string
	errStream := client.Stream(context.Background(), BuildMessages(nil, "hi", 0), func(s string) error {
		fragments = append(fragments, s)
		return nil
	})
	if errStream != nil {
		t.Fatalf("Stream() error = %v", errStream)
	}
	if strings.Join(fragments, "|") != "Hel|lo" {
		t.Fatalf("fragments = %#v", fragments)
	}
	if gotAuth != "Bearer test-key" || gotTitle != "Rojo Studio" {
		t.Fatalf("headers auth=%q title=%q", gotAuth, gotTitle)
	}
	if !gotBody.Stream || gotBody.Model != DefaultModel || gotBody.MaxTokens != DefaultMaxTokens || gotBody.Temperature != DefaultTemperature {
		t.Fatalf("body = %#v", gotBody)
	}
}

func TestStreamProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, APIKey: "k"})
	errStream := client.Stream(context.Background(), nil, func(string) error { return nil })
	var providerErr *ProviderError
	if !errors.As(errStream, &providerErr) || providerErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("error = %v", errStream)
	}
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 3; i++ {
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		}
	}))
	defer srv.Close()

	stop := errors.New("client gone")
	calls := 0
	errStream := NewClient(Options{BaseURL: srv.URL, APIKey: "k"}).Stream(context.Background(), nil, func(string) error {
		calls++
		return stop
	})
	if !errors.Is(errStream, stop) || calls != 1 {
		t.Fatalf("error = %v calls = %d", errStream, calls)
	}
}

func TestStreamRequiresKey(t *testing.T) {
	if errStream := NewClient(Options{}).Stream(context.Background(), nil, nil); !errors.Is(errStream, ErrNotConfigured) {
		t.Fatalf("error = %v", errStream)
	}
}

func TestBuildMessagesKeepsTrailingTurns(t *testing.T) {
	var history []Message
	for i := 0; i < 14; i++ {
		history = append(history, Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	history = append(history, Message{Role: RoleSystem, Content: "injected"})
	msgs := BuildMessages(history, "now", 10)
	if len(msgs) != 12 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != SystemPreamble {
		t.Fatal("first message must be the preamble")
	}
	if msgs[1].Content != "m4" || msgs[11].Content != "now" {
		t.Fatalf("msgs[1]=%q last=%q", msgs[1].Content, msgs[11].Content)
	}
}

func TestEncodeFragment(t *testing.T) {
	if got := string(EncodeFragment("a\"b")); got != "data: {\"content\":\"a\\\"b\"}\n\n" {
		t.Fatalf("EncodeFragment = %q", got)
	}
}
