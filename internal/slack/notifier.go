package slack

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/deadline"
	"github.com/akmatori/article73/internal/notify"
	"github.com/akmatori/article73/internal/utils"
)

const maxTitleLength = 150

// slackAPI is the subset of *slack.Client the notifier calls
type slackAPI interface {
	conversationLister
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts timeline alerts to a Slack channel
type Notifier struct {
	client   slackAPI
	resolver *ChannelResolver
	channel  string
}

// NewNotifier creates a notifier posting with botToken to channel.
// It returns nil when Slack is not configured.
func NewNotifier(botToken, channel string) *Notifier {
	if botToken == "" || channel == "" {
		log.Printf("SlackNotifier: Slack is disabled (no bot token or channel)")
		return nil
	}
	return newNotifier(slack.New(botToken, slack.OptionDebug(false)), channel)
}

func newNotifier(client slackAPI, channel string) *Notifier {
	return &Notifier{
		client:   client,
		resolver: NewChannelResolver(client),
		channel:  channel,
	}
}

// NotifyTimeline posts the event to the alerts channel
func (n *Notifier) NotifyTimeline(ctx context.Context, ev notify.TimelineEvent) error {
	channelID, err := n.resolver.ResolveChannel(n.channel)
	if err != nil {
		return fmt.Errorf("failed to resolve alerts channel: %w", err)
	}

	text := FormatTimelineAlert(ev)
	_, ts, err := n.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to post timeline alert: %w", err)
	}
	log.Printf("SlackNotifier: posted %s alert for incident %s (ts %s)", ev.Status, ev.IncidentID, ts)
	return nil
}

// FormatTimelineAlert renders an event as Slack mrkdwn
func FormatTimelineAlert(ev notify.TimelineEvent) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s *Article 73 reporting deadline %s*\n", statusEmoji(ev.Status), statusLabel(ev.Status)))
	sb.WriteString(fmt.Sprintf("*%s*\n", utils.TruncateText(ev.Title, maxTitleLength)))
	sb.WriteString(fmt.Sprintf("• Incident: `%s`\n", ev.IncidentID))
	if ev.AISystemName != "" {
		sb.WriteString(fmt.Sprintf("• AI system: %s\n", ev.AISystemName))
	}
	if ev.MemberState != "" {
		sb.WriteString(fmt.Sprintf("• Member state: %s\n", ev.MemberState))
	}
	sb.WriteString(fmt.Sprintf("• Type: %s\n", ev.Type))
	if ev.Severity != "" {
		sb.WriteString(fmt.Sprintf("• Severity: %s %s\n", database.GetSeverityEmoji(ev.Severity), ev.Severity))
	}
	sb.WriteString(fmt.Sprintf("• Deadline: %s\n", ev.Deadline.UTC().Format("2006-01-02 15:04 MST")))
	sb.WriteString(fmt.Sprintf("• %s\n", formatRemaining(ev.DaysRemaining)))
	if !ev.ReportingCompliant {
		sb.WriteString(":no_entry: Reporting is not compliant\n")
	}
	return sb.String()
}

func formatRemaining(days float64) string {
	if days < 0 {
		return "Overdue by " + utils.FormatDays(days)
	}
	return "Remaining: " + utils.FormatDays(days)
}

func statusEmoji(s deadline.Status) string {
	switch s {
	case deadline.StatusOverdue:
		return ":rotating_light:"
	case deadline.StatusUrgent:
		return ":warning:"
	case deadline.StatusApproaching:
		return ":hourglass_flowing_sand:"
	default:
		return ":white_check_mark:"
	}
}

func statusLabel(s deadline.Status) string {
	switch s {
	case deadline.StatusOverdue:
		return "overdue"
	case deadline.StatusUrgent:
		return "urgent"
	case deadline.StatusApproaching:
		return "approaching"
	default:
		return "on track"
	}
}
