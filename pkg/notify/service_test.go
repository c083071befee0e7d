package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	// Both must be no-ops, not panics.
	s.NotifyExecutionStarted(context.Background(), ExecutionStartedInput{
		ExecutionID: "exec-1",
		TaskName:    "Monthly Sales",
	})
	s.NotifyExecutionFinished(context.Background(), ExecutionFinishedInput{
		ExecutionID: "exec-1",
		Status:      "completed",
	})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		assert.Nil(t, NewService(ServiceConfig{Token: "", Channel: "C123"}))
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		assert.Nil(t, NewService(ServiceConfig{Token: "xoxb-test", Channel: ""}))
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{
			Token:        "xoxb-test",
			Channel:      "C123",
			DashboardURL: "https://example.com",
		})
		assert.NotNil(t, svc)
	})
}

func TestBroadcastDeduplicatesChannels(t *testing.T) {
	svc := NewServiceWithClient(nil, "C-default", "https://example.com")

	var posted []string
	svc.broadcast(context.Background(),
		[]string{"C-extra", "C-default", "", "C-extra"},
		func(channel string) error {
			posted = append(posted, channel)
			return nil
		}, "exec-1")

	assert.Equal(t, []string{"C-default", "C-extra"}, posted)
}
