package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mepipe/internal/config"
)

type captured struct {
	title    string
	priority string
	body     string
}

func newTestService(t *testing.T, exams, scanFailures, errs bool) (Service, *[]captured) {
	t.Helper()
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Exams = exams
	cfg.Notifications.ScanFailures = scanFailures
	cfg.Notifications.Errors = errs
	return NewService(&cfg), &requests
}

func TestNoopWhenTopicEmpty(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := NewService(&cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyError(context.Background(), errors.New("x"), "pull"); err != nil {
		t.Fatalf("noop should never fail: %v", err)
	}
}

func TestExamNotifications(t *testing.T) {
	svc, requests := newTestService(t, true, true, true)
	ctx := context.Background()

	if err := svc.NotifyExamStarted(ctx, "exam01", 4); err != nil {
		t.Fatalf("NotifyExamStarted: %v", err)
	}
	if err := svc.NotifyExamCompleted(ctx, "exam01", 3, 1, 0, 90*time.Second); err != nil {
		t.Fatalf("NotifyExamCompleted: %v", err)
	}

	if len(*requests) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(*requests))
	}
	if (*requests)[1].title != "mepipe - Exam Complete (with problems)" {
		t.Fatalf("unexpected title: %q", (*requests)[1].title)
	}
}

func TestScanFailureRespectsToggle(t *testing.T) {
	svc, requests := newTestService(t, true, false, true)

	err := svc.NotifyScanFailure(context.Background(), "exam01", "0005", errors.New("dimon exit 1"))
	if err != nil {
		t.Fatalf("NotifyScanFailure: %v", err)
	}
	if len(*requests) != 0 {
		t.Fatalf("disabled toggle still sent %d notifications", len(*requests))
	}
}

func TestErrorNotificationCarriesPriority(t *testing.T) {
	svc, requests := newTestService(t, false, false, true)

	if err := svc.NotifyError(context.Background(), errors.New("boom"), "upload"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if len(*requests) != 1 || (*requests)[0].priority != "high" {
		t.Fatalf("unexpected requests: %+v", *requests)
	}
}

func TestSendSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic blocked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = true
	svc := NewService(&cfg)

	if err := svc.NotifyError(context.Background(), errors.New("boom"), ""); err == nil {
		t.Fatal("expected error from 403 response")
	}
}
