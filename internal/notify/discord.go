// Package notify posts pipeline completion and failure events to a Discord
// channel via webhook-style channel messages. It is an optional companion to
// the engine: operators who configure notify.discord get a ping when a bulk
// job or video build finishes (or dies) without polling the UI.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kinoforge/pkg/types"
)

// Config holds Discord notifier configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix; New adds it.
	Token string `yaml:"token"`

	// ChannelID is the channel completion/failure embeds are posted to.
	ChannelID string `yaml:"channel_id"`
}

// Discord posts build and bulk-job lifecycle events as channel embeds.
//
// Safe for concurrent use.
type Discord struct {
	session   *discordgo.Session
	channelID string
}

// New connects to Discord and returns a ready Discord notifier.
func New(_ context.Context, cfg Config) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("notify: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("notify: open session: %w", err)
	}
	return &Discord{session: session, channelID: cfg.ChannelID}, nil
}

// Close disconnects from Discord.
func (d *Discord) Close() error {
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("notify: close session: %w", err)
	}
	return nil
}

// NotifyBuildComplete posts an embed announcing a finished (or failed) video build.
func (d *Discord) NotifyBuildComplete(build types.VideoBuild) {
	embed := &discordgo.MessageEmbed{
		Title: "Video build finished",
		Color: buildColor(build.Status),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Project", Value: build.ProjectID, Inline: true},
			{Name: "Status", Value: string(build.Status), Inline: true},
		},
	}
	if build.DownloadURL != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Download", Value: *build.DownloadURL,
		})
	}
	if build.ErrorMessage != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Error", Value: *build.ErrorMessage,
		})
	}
	d.post(embed)
}

// NotifyBulkJobComplete posts an embed summarizing a finished bulk image or
// audio generation run.
func (d *Discord) NotifyBulkJobComplete(kind, projectID string, succeeded, failed int, elapsed time.Duration) {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Bulk %s generation finished", kind),
		Color: 0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Project", Value: projectID, Inline: true},
			{Name: "Succeeded", Value: fmt.Sprintf("%d", succeeded), Inline: true},
			{Name: "Failed", Value: fmt.Sprintf("%d", failed), Inline: true},
			{Name: "Elapsed", Value: elapsed.Round(time.Second).String(), Inline: true},
		},
	}
	d.post(embed)
}

func (d *Discord) post(embed *discordgo.MessageEmbed) {
	_, err := d.session.ChannelMessageSendEmbed(d.channelID, embed)
	if err != nil {
		slog.Warn("notify: failed to post embed", "err", err)
	}
}

func buildColor(status types.VideoBuildStatus) int {
	switch status {
	case types.BuildCompleted:
		return 0x2ECC71
	case types.BuildFailed, types.BuildCancelled:
		return 0xE74C3C
	default:
		return 0xF1C40F
	}
}
