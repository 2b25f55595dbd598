package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
)

// DiscordService implements NotificationService for Discord webhooks
type DiscordService struct {
	log        zerolog.Logger
	webhookURL string
	httpClient *http.Client
}

// NewDiscordService creates a new Discord notification service
func NewDiscordService(log zerolog.Logger, webhookURL string) *DiscordService {
	return &DiscordService{
		log:        log.With().Str("module", "notification").Str("type", "discord").Logger(),
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendSuccess posts the totals of a prefetch run
func (s *DiscordService) SendSuccess(ctx context.Context, stats domain.WarmStats) error {
	if s.webhookURL == "" {
		return nil
	}

	color := 0x00ff00
	title := "Cache Warm Completed"
	if stats.EndpointsFailed+stats.AssetsFailed > 0 {
		color = 0xffa500
		title = "Cache Warm Completed With Failures"
	}

	embed := discordEmbed{
		Title:       title,
		Description: fmt.Sprintf("Run `%s` filled `%s`", stats.RunID, stats.Cache),
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []discordField{
			{
				Name:   "Endpoints",
				Value:  fmt.Sprintf("%d ok, %d failed", stats.EndpointsOK, stats.EndpointsFailed),
				Inline: true,
			},
			{
				Name:   "Assets",
				Value:  fmt.Sprintf("%d ok, %d failed", stats.AssetsOK, stats.AssetsFailed),
				Inline: true,
			},
			{
				Name:   "Warnings",
				Value:  fmt.Sprintf("%d", stats.Warnings),
				Inline: true,
			},
			{
				Name:   "Duration",
				Value:  stats.Duration.Round(time.Millisecond).String(),
				Inline: true,
			},
		},
	}

	return s.sendWebhook(ctx, discordWebhook{Embeds: []discordEmbed{embed}})
}

// SendError sends an error notification with error details
func (s *DiscordService) SendError(ctx context.Context, err error) error {
	if s.webhookURL == "" {
		return nil
	}

	embed := discordEmbed{
		Title:       "Cache Warm Failed",
		Description: fmt.Sprintf("Prefetch run failed with error:\n```%s```", err.Error()),
		Color:       0xff0000,
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	return s.sendWebhook(ctx, discordWebhook{Embeds: []discordEmbed{embed}})
}

func (s *DiscordService) sendWebhook(ctx context.Context, payload discordWebhook) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	s.log.Debug().Msg("Discord notification sent successfully")
	return nil
}

type discordWebhook struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}
