package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidqueue/internal/config"
)

const userAgent = "vidqueue/0.1"

// Event names a notification-worthy occurrence.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event details. Known keys: name, jobID, error, elapsed.
type Payload map[string]any

// Service publishes events. Implementations must be safe for concurrent use.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted: cfg.Notifications.Completed,
			EventJobFailed:    cfg.Notifications.Failures,
			EventTest:         true,
		},
	}
}

// Enabled reports whether svc actually delivers notifications.
func Enabled(svc Service) bool {
	switch svc.(type) {
	case nil, noopService:
		return false
	default:
		return true
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	name := payload.text("name")
	if name == "" {
		name = payload.text("jobID")
	}
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("Processed: %s", name)
		if elapsed := payload.text("elapsed"); elapsed != "" {
			body = fmt.Sprintf("%s in %s", body, elapsed)
		}
		return message{
			title: "vidqueue - Job Complete",
			body:  body,
			tags:  []string{"vidqueue", "job", "completed"},
		}, true
	case EventJobFailed:
		reason := payload.text("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "vidqueue - Job Failed",
			body:     fmt.Sprintf("Failed: %s\n%s", name, reason),
			tags:     []string{"vidqueue", "job", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "vidqueue - Test",
			body:     "Notification system test",
			tags:     []string{"vidqueue", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case time.Duration:
		return v.Round(time.Second).String()
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
