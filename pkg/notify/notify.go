// Package notify delivers run-finished notifications to Slack. The service is
// nil-safe and fail-open: a missing token or channel disables it, and delivery
// errors are logged, never surfaced to the pipeline.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

const (
	postTimeout        = 10 * time.Second
	maxBlockTextLength = 2900
)

var statusEmoji = map[models.RunStatus]string{
	models.RunCompleted: ":white_check_mark:",
	models.RunFailed:    ":x:",
	models.RunCancelled: ":no_entry_sign:",
}

var statusLabel = map[models.RunStatus]string{
	models.RunCompleted: "Harness Run Complete",
	models.RunFailed:    "Harness Run Failed",
	models.RunCancelled: "Harness Run Cancelled",
}

// Config holds the parameters needed to construct a Service.
type Config struct {
	Token        string
	ChannelID    string
	DashboardURL string
}

// Service posts harness notifications. Nil-safe: all methods are no-ops when
// the service is nil.
type Service struct {
	api          *goslack.Client
	channelID    string
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates the notification service, or nil when the token or
// channel is missing.
func NewService(cfg Config) *Service {
	if cfg.Token == "" || cfg.ChannelID == "" {
		return nil
	}
	return &Service{
		api:          goslack.New(cfg.Token),
		channelID:    cfg.ChannelID,
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify"),
	}
}

// NewServiceWithAPIURL targets a custom API URL. Useful for testing against a
// mock server.
func NewServiceWithAPIURL(cfg Config, apiURL string) *Service {
	s := NewService(cfg)
	if s == nil {
		return nil
	}
	s.api = goslack.New(cfg.Token, goslack.OptionAPIURL(apiURL))
	return s
}

// NotifyRunFinished posts a terminal-status message for a run. Fail-open:
// errors are logged, never returned.
func (s *Service) NotifyRunFinished(snap models.RunSnapshot) {
	if s == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	blocks := buildRunFinishedMessage(snap, s.dashboardURL)
	_, _, err := s.api.PostMessageContext(ctx, s.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		s.logger.Error("Failed to send run notification",
			"run_id", snap.ID,
			"status", snap.Status,
			"error", err)
		return
	}
	s.logger.Info("Run notification sent", "run_id", snap.ID, "status", snap.Status)
}

// buildRunFinishedMessage creates the Block Kit blocks for a terminal run
// notification.
func buildRunFinishedMessage(snap models.RunSnapshot, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[snap.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[snap.Status]
	if label == "" {
		label = "Harness Run " + string(snap.Status)
	}

	headerText := fmt.Sprintf("%s *%s* — %s", emoji, label, snap.Task.Title)
	if snap.Status != models.RunCompleted && snap.Error != "" {
		headerText += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(snap.Error))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}
	if snap.SummaryText != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(snap.SummaryText), false, false),
			nil, nil,
		))
	}

	if dashboardURL != "" {
		btn := goslack.NewButtonBlockElement("", "",
			goslack.NewTextBlockObject(goslack.PlainTextType, "View Run", false, false))
		btn.URL = fmt.Sprintf("%s/harness/runs/%s", dashboardURL, snap.ID)
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}
	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view full run in dashboard)_"
}
