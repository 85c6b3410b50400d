package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mepipe/internal/config"
)

const userAgent = "mepipe/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyExamStarted(ctx context.Context, exam string, candidates int) error
	NotifyExamCompleted(ctx context.Context, exam string, concatenated, failed, incomplete int, duration time.Duration) error
	NotifyScanFailure(ctx context.Context, exam, scan string, cause error) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		exams:        cfg.Notifications.Exams,
		scanFailures: cfg.Notifications.ScanFailures,
		errors:       cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	exams        bool
	scanFailures bool
	errors       bool
}

func (n *ntfyService) NotifyExamStarted(ctx context.Context, exam string, candidates int) error {
	if !n.exams {
		return nil
	}
	data := payload{
		title:   "mepipe - Exam Started",
		message: fmt.Sprintf("Processing %s: %d multi-echo scans", strings.TrimSpace(exam), candidates),
		tags:    []string{"mepipe", "exam", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyExamCompleted(ctx context.Context, exam string, concatenated, failed, incomplete int, duration time.Duration) error {
	if !n.exams {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 && incomplete == 0 {
		title = "mepipe - Exam Complete"
		message = fmt.Sprintf("%s: %d scans concatenated in %s",
			strings.TrimSpace(exam), concatenated, duration)
	} else {
		title = "mepipe - Exam Complete (with problems)"
		message = fmt.Sprintf("%s: %d concatenated, %d failed, %d incomplete in %s",
			strings.TrimSpace(exam), concatenated, failed, incomplete, duration)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"mepipe", "exam", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScanFailure(ctx context.Context, exam, scan string, cause error) error {
	if !n.scanFailures {
		return nil
	}
	message := fmt.Sprintf("Scan %s/%s failed", strings.TrimSpace(exam), strings.TrimSpace(scan))
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(cause.Error()))
	}
	data := payload{
		title:    "mepipe - Scan Failed",
		message:  message,
		tags:     []string{"mepipe", "scan", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "mepipe - Error",
		message:  builder.String(),
		tags:     []string{"mepipe", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "mepipe - Test",
		message:  "Notification system test",
		tags:     []string{"mepipe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyExamStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyExamCompleted(context.Context, string, int, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyScanFailure(context.Context, string, string, error) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error               { return nil }
func (noopService) TestNotification(context.Context) error                         { return nil }
