package handler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"nlcal/src-server/utils"

	"github.com/bwmarrin/discordgo"
)

func Ping(as *utils.AppState) {
	id := "ping"
	as.AddAppCmdHandler(id, pingHandler(as))
	as.AddAppCmdInfo(id, &discordgo.ApplicationCommand{
		Name:        id,
		Description: "A ping command.",
	})
}

func pingHandler(as *utils.AppState) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		memUsage := float64(m.Sys) / 1024 / 1024

		fields := []*discordgo.MessageEmbedField{
			{
				Name:  "Uptime",
				Value: as.GetUptime().String(),
			},
			{
				Name:   "Latency",
				Value:  fmt.Sprintf("%dms", s.HeartbeatLatency().Milliseconds()),
				Inline: true,
			},
			{
				Name:   "Model",
				Value:  as.Config.GetExtractConfig().Generation.Model,
				Inline: true,
			},
			{
				Name:   "Memory",
				Value:  fmt.Sprintf("%.2fMB", memUsage),
				Inline: true,
			},
		}
		if as.History != nil {
			if latency, err := as.History.Ping(context.Background()); err == nil {
				as.MetricChans.ObserveDatabaseRead(latency)
				fields = append(fields, &discordgo.MessageEmbedField{
					Name:   "Database",
					Value:  fmt.Sprintf("%dµs", latency.Microseconds()),
					Inline: true,
				})
			}
		}

		startTimer := time.Now()
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
				Embeds: []*discordgo.MessageEmbed{
					{
						Title:  "Pong!",
						Footer: &discordgo.MessageEmbedFooter{Text: i.GuildID},
						Fields: fields,
					},
				},
			},
		}); err != nil {
			slog.Warn("pingHandler: can't respond", "error", err)
		}
		as.MetricChans.ObserveDiscordSend(time.Since(startTimer))
		return nil
	}
}
