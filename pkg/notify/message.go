package notify

import (
	"fmt"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var statusEmoji = map[string]string{
	"completed": ":white_check_mark:",
	"failed":    ":x:",
	"cancelled": ":no_entry_sign:",
}

var statusLabel = map[string]string{
	"completed": "Report Ready",
	"failed":    "Report Failed",
	"cancelled": "Report Cancelled",
}

func executionURL(executionID, dashboardURL string) string {
	return fmt.Sprintf("%s/executions/%s", dashboardURL, executionID)
}

// BuildStartedMessage creates Block Kit blocks for an execution start
// notification.
func BuildStartedMessage(input ExecutionStartedInput, dashboardURL string) []goslack.Block {
	url := executionURL(input.ExecutionID, dashboardURL)
	text := fmt.Sprintf(":arrows_counterclockwise: *Generating report* — %s (%s)\n<%s|View progress>",
		input.TaskName, input.WindowLabel, url)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildTerminalMessage creates Block Kit blocks for a terminal execution
// notification. Completed reports get a download button when an artifact
// link is available; failures carry the error text.
func BuildTerminalMessage(input ExecutionFinishedInput, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[input.Status]
	if label == "" {
		label = "Report " + input.Status
	}

	headerText := fmt.Sprintf("%s *%s* — %s (%s)", emoji, label, input.TaskName, input.WindowLabel)
	if input.Status != "completed" && input.ErrorMessage != "" {
		headerText += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(input.ErrorMessage))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	if input.Status == "completed" && input.DownloadURL != "" {
		btn := goslack.NewButtonBlockElement("", "",
			goslack.NewTextBlockObject(goslack.PlainTextType, "Download Report", false, false))
		btn.URL = input.DownloadURL
		blocks = append(blocks, goslack.NewActionBlock("", btn))
		return blocks
	}

	btn := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, "View Details", false, false))
	btn.URL = executionURL(input.ExecutionID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))
	return blocks
}

// truncateForSlack caps text at the Block Kit limit without splitting a
// multi-byte rune.
func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated — view details in dashboard)_"
}
