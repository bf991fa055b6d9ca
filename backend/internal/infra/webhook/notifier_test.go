package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
)

func TestNotifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var received payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewNotifier(Options{URL: srv.URL, Attempts: 3, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	notice := promptdomain.DeletionNotice{PromptID: "p-1", RequesterCode: "ABC123", Reason: "Spam"}
	if err := n.NotifyDeletionRequest(context.Background(), notice); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if received.Event != eventDeletionRequested || received.PromptID != "p-1" || received.Reason != "Spam" {
		t.Fatalf("unexpected payload %+v", received)
	}
}

func TestNotifierStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	n, err := NewNotifier(Options{URL: srv.URL, Attempts: 5, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	err = n.NotifyDeletionRequest(context.Background(), promptdomain.DeletionNotice{PromptID: "p-1"})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestNewNotifierRejectsInvalidURL(t *testing.T) {
	if _, err := NewNotifier(Options{URL: "ftp://example"}); err == nil {
		t.Fatalf("expected invalid url error")
	}
}
