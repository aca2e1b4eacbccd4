package utils

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// =========================================================
// Pre-built discordgo interaction responses for convenience
// =========================================================

// Send a hidden reply to the interaction.
// For a hidden non-reply, use `s.ChannelMessageSend(i.ChannelID, "content")`
func InteractRespHiddenReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		slog.Warn("can't send hidden reply", "error", err)
	}
}

// Replace the content of a deferred response.
func InteractRespEdit(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	return err
}
