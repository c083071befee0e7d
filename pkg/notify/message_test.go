package notify

import (
	"strings"
	"testing"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStartedMessage(t *testing.T) {
	blocks := BuildStartedMessage(ExecutionStartedInput{
		ExecutionID: "exec-123",
		TaskName:    "Monthly Sales",
		WindowLabel: "2026-07",
	}, "https://reports.example.com")

	require.Len(t, blocks, 1)

	section, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, ":arrows_counterclockwise:")
	assert.Contains(t, section.Text.Text, "Monthly Sales")
	assert.Contains(t, section.Text.Text, "2026-07")
	assert.Contains(t, section.Text.Text, "https://reports.example.com/executions/exec-123")
}

func TestBuildTerminalMessage_Completed(t *testing.T) {
	blocks := BuildTerminalMessage(ExecutionFinishedInput{
		ExecutionID: "exec-1",
		TaskName:    "Monthly Sales",
		WindowLabel: "2026-07",
		Status:      "completed",
		DownloadURL: "https://s3.example.com/report.docx?sig=abc",
	}, "https://reports.example.com")

	require.Len(t, blocks, 2)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":white_check_mark:")
	assert.Contains(t, header.Text.Text, "Report Ready")
	assert.Contains(t, header.Text.Text, "Monthly Sales")

	action := blocks[1].(*goslack.ActionBlock)
	require.Len(t, action.Elements.ElementSet, 1)
	btn, ok := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "Download Report", btn.Text.Text)
	assert.Equal(t, "https://s3.example.com/report.docx?sig=abc", btn.URL)
}

func TestBuildTerminalMessage_CompletedWithoutLink(t *testing.T) {
	blocks := BuildTerminalMessage(ExecutionFinishedInput{
		ExecutionID: "exec-2",
		TaskName:    "Monthly Sales",
		Status:      "completed",
	}, "https://reports.example.com")

	require.Len(t, blocks, 2)
	action := blocks[1].(*goslack.ActionBlock)
	btn := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	assert.Equal(t, "View Details", btn.Text.Text)
	assert.Contains(t, btn.URL, "/executions/exec-2")
}

func TestBuildTerminalMessage_Failed(t *testing.T) {
	blocks := BuildTerminalMessage(ExecutionFinishedInput{
		ExecutionID:  "exec-3",
		TaskName:     "Monthly Sales",
		Status:       "failed",
		ErrorMessage: "3 placeholder(s) failed, tolerance is 0",
	}, "https://reports.example.com")

	require.Len(t, blocks, 2)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":x:")
	assert.Contains(t, header.Text.Text, "Report Failed")
	assert.Contains(t, header.Text.Text, "tolerance is 0")

	action := blocks[1].(*goslack.ActionBlock)
	btn := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	assert.Equal(t, "View Details", btn.Text.Text)
}

func TestBuildTerminalMessage_Cancelled(t *testing.T) {
	blocks := BuildTerminalMessage(ExecutionFinishedInput{
		ExecutionID: "exec-4",
		Status:      "cancelled",
	}, "https://reports.example.com")

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":no_entry_sign:")
	assert.Contains(t, header.Text.Text, "Report Cancelled")
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateForSlack("hello"))
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength)
		assert.Equal(t, text, truncateForSlack(text))
	})

	t.Run("over limit truncated", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength+100)
		result := truncateForSlack(text)
		assert.True(t, len(result) < len(text))
		assert.Contains(t, result, "truncated")
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		text := strings.Repeat("🔥", maxBlockTextLength+10)
		result := truncateForSlack(text)
		assert.True(t, utf8.ValidString(result))
		prefix := strings.Split(result, "\n\n_...")[0]
		assert.Equal(t, maxBlockTextLength, utf8.RuneCountInString(prefix))
	})
}
