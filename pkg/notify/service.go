package notify

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string // default channel, always notified
	DashboardURL string
}

// ExecutionStartedInput contains data for an execution start notification.
type ExecutionStartedInput struct {
	ExecutionID string
	TaskName    string
	WindowLabel string
	Recipients  []string // extra channel IDs from the task
}

// ExecutionFinishedInput contains data for a terminal execution notification.
type ExecutionFinishedInput struct {
	ExecutionID  string
	TaskName     string
	WindowLabel  string
	Status       string // completed, failed, cancelled
	ErrorMessage string
	DownloadURL  string // presigned or local artifact URL, completed only
	Recipients   []string
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	channel      string
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token),
		channel:      cfg.Channel,
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, channel, dashboardURL string) *Service {
	return &Service{
		client:       client,
		channel:      channel,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyExecutionStarted announces a report run to the default channel
// and the task's recipients.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyExecutionStarted(ctx context.Context, input ExecutionStartedInput) {
	if s == nil {
		return
	}
	blocks := BuildStartedMessage(input, s.dashboardURL)
	s.broadcast(ctx, input.Recipients, func(channel string) error {
		return s.client.PostMessage(ctx, channel, blocks, 5*time.Second)
	}, input.ExecutionID)
}

// NotifyExecutionFinished announces a terminal outcome.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyExecutionFinished(ctx context.Context, input ExecutionFinishedInput) {
	if s == nil {
		return
	}
	blocks := BuildTerminalMessage(input, s.dashboardURL)
	s.broadcast(ctx, input.Recipients, func(channel string) error {
		return s.client.PostMessage(ctx, channel, blocks, 10*time.Second)
	}, input.ExecutionID)
}

// broadcast posts to the default channel plus the task's recipients,
// deduplicated. One channel failing never blocks the others.
func (s *Service) broadcast(_ context.Context, recipients []string, post func(channel string) error, executionID string) {
	channels := []string{s.channel}
	seen := map[string]bool{s.channel: true}
	for _, r := range recipients {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		channels = append(channels, r)
	}

	for _, channel := range channels {
		if err := post(channel); err != nil {
			s.logger.Error("Failed to send Slack notification",
				"execution_id", executionID,
				"channel", channel,
				"error", err)
		}
	}
}
