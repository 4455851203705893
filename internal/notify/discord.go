package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Discord embed limits.
const (
	discordTitleMax       = 256
	discordDescriptionMax = 4096
)

// Embed colours keyed by the outcome a notification title reports.
const (
	colourFailure = 0xE74C3C
	colourSettled = 0x2ECC71
	colourSwept   = 0xF1C40F
	colourInfo    = 0x3498DB
)

// DiscordSender delivers notifications via a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     newHTTPClient(),
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username        string         `json:"username"`
	Embeds          []discordEmbed `json:"embeds"`
	AllowedMentions struct {
		Parse []string `json:"parse"`
	} `json:"allowed_mentions"`
}

// Send posts one embed, coloured by the kind of round event. Mentions are
// disabled. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload := discordPayload{
		Username: "betengine",
		Embeds: []discordEmbed{{
			Title:       truncate(title, discordTitleMax),
			Description: truncate(message, discordDescriptionMax),
			Color:       embedColour(title),
		}},
	}
	payload.AllowedMentions.Parse = []string{}

	if err := postJSON(ctx, d.client, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func embedColour(title string) int {
	switch {
	case strings.HasSuffix(title, "failed"):
		return colourFailure
	case strings.HasSuffix(title, "settled"):
		return colourSettled
	case strings.Contains(title, "swept"):
		return colourSwept
	default:
		return colourInfo
	}
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
