package notifier

import (
	"fmt"
	"time"

	"github.com/pulseguard/pulseguard/internal/types"
)

// Message is the channel-independent notification content.
type Message struct {
	AlertID  string
	Title    string
	Body     string
	Severity types.Severity
	Category types.Category
	Resolved bool
}

// FormattedMessage is a Message rendered for a channel template.
type FormattedMessage struct {
	Title string
	Body  string
	Color string
}

// severityStyle maps severity to presentation. Mapping is data, not logic.
var severityStyle = map[types.Severity]struct {
	emoji string
	color string
}{
	types.SeverityCritical: {"🔴", "#d32f2f"},
	types.SeverityHigh:     {"🟠", "#f57c00"},
	types.SeverityMedium:   {"🟡", "#fbc02d"},
	types.SeverityLow:      {"🔵", "#1976d2"},
}

// Format renders a message for delivery.
func Format(msg Message) FormattedMessage {
	style, ok := severityStyle[msg.Severity]
	if !ok {
		style.emoji = "ℹ️"
		style.color = "#757575"
	}
	emoji := style.emoji
	if msg.Resolved {
		emoji = "🟢"
	}

	title := fmt.Sprintf("%s PulseGuard Alert: %s", emoji, msg.Title)
	body := fmt.Sprintf("%s\n\nSeverity: %s\nCategory: %s\nAlert: %s\nTime: %s",
		msg.Body, msg.Severity, msg.Category, msg.AlertID,
		time.Now().UTC().Format(time.RFC3339))

	return FormattedMessage{
		Title: title,
		Body:  body,
		Color: style.color,
	}
}
