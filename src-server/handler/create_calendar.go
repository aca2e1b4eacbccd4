package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nlcal/src-server/creator"
	"nlcal/src-server/extract"
	"nlcal/src-server/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/go-resty/resty/v2"
)

const (
	createCalendarTimeout = 10 * time.Minute
	discordMessageLimit   = 2000
	historySource         = "discord"
)

func CreateCalendar(as *utils.AppState) {
	id := "create-calendar"
	downloader := resty.New().SetTimeout(30 * time.Second)
	as.AddAppCmdHandler(id, createCalendarHandler(as, downloader))
	as.AddAppCmdInfo(id, &discordgo.ApplicationCommand{
		Name:        id,
		Description: "Turn an event description or poster into an .ics file",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "content",
				Description: "What's happening, when and where",
			},
			{
				Type:        discordgo.ApplicationCommandOptionAttachment,
				Name:        "image",
				Description: "A poster, flyer or screenshot of the event",
			},
		},
	})
}

func createCalendarHandler(as *utils.AppState, downloader *resty.Client) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			slog.Warn("can't respond", "handler", "create-calendar", "content", "deferring", "error", err)
		}
		edit := func(content string) {
			startTimer := time.Now()
			if err := utils.InteractRespEdit(s, i, truncateMessage(content)); err != nil {
				slog.Warn("can't respond", "handler", "create-calendar", "error", err)
				return
			}
			as.MetricChans.ObserveDiscordSend(time.Since(startTimer))
		}

		ctx, cancel := context.WithTimeout(context.Background(), createCalendarTimeout)
		defer cancel()

		// #region | get the content & images
		data := i.ApplicationCommandData()
		optionMap := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
		for _, opt := range data.Options {
			optionMap[opt.Name] = opt
		}
		var content string
		if opt, ok := optionMap["content"]; ok {
			content = strings.TrimSpace(opt.StringValue())
		}
		images := make([]extract.Image, 0, 1)
		if opt, ok := optionMap["image"]; ok && data.Resolved != nil {
			attachmentID, _ := opt.Value.(string)
			if attachment, ok := data.Resolved.Attachments[attachmentID]; ok {
				image, err := downloadAttachment(ctx, downloader, attachment, as.Config.GetImageMaxBytes())
				if err != nil {
					edit(fmt.Sprintf("Can't use the attached image\n```%s```", err.Error()))
					return nil
				}
				images = append(images, image)
			}
		}
		if content == "" && len(images) == 0 {
			edit("Content or an image is required.")
			return nil
		}
		// #endregion

		// #region | description -> calendar
		result, err := as.Creator.Create(ctx, content, images, func(line string) {
			edit(line)
		})
		if err != nil {
			msg := fmt.Sprintf("Can't create calendar\n```%s```", err.Error())
			if len(result.Warnings) > 0 {
				msg += "\n" + formatWarnings(result.Warnings)
			}
			edit(msg)
			if userFault(err) {
				return nil
			}
			return fmt.Errorf("createCalendarHandler: %w", err)
		}
		// #endregion

		// #region | store & reply with the file
		if as.History != nil {
			startTimer := time.Now()
			if _, err := as.History.Save(ctx, historySource, content, result.Document, len(result.Events), result.Warnings); err != nil {
				slog.Error("can't save calendar to history", "error", err)
			} else {
				as.MetricChans.ObserveDatabaseWrite(time.Since(startTimer))
			}
		}

		msg := fmt.Sprintf("Created %d event(s).", len(result.Events))
		if len(result.Warnings) > 0 {
			msg += "\n" + formatWarnings(result.Warnings)
		}
		msg = truncateMessage(msg)
		startTimer := time.Now()
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content: &msg,
			Files: []*discordgo.File{
				{
					Name:        "events.ics",
					ContentType: "text/calendar",
					Reader:      strings.NewReader(result.Document),
				},
			},
		}); err != nil {
			slog.Error("can't respond", "handler", "create-calendar", "content", "calendar-file", "error", err)
			return fmt.Errorf("createCalendarHandler: %w", err)
		}
		as.MetricChans.ObserveDiscordSend(time.Since(startTimer))
		return nil
		// #endregion
	}
}

func downloadAttachment(ctx context.Context, downloader *resty.Client, attachment *discordgo.MessageAttachment, maxBytes int64) (extract.Image, error) {
	if int64(attachment.Size) > maxBytes {
		return extract.Image{}, &extract.ImageError{
			Name:   attachment.Filename,
			Reason: fmt.Sprintf("larger than %d bytes", maxBytes),
		}
	}
	data, err := utils.DownloadFile(ctx, downloader, attachment.URL, maxBytes)
	if err != nil {
		return extract.Image{}, &extract.ImageError{Name: attachment.Filename, Reason: "can't download", Err: err}
	}
	return extract.NewImage(attachment.Filename, data, maxBytes)
}

// userFault reports errors caused by the input rather than the backend.
func userFault(err error) bool {
	return errors.Is(err, creator.ErrEmptyRequest) ||
		errors.Is(err, creator.ErrNoEvents) ||
		errors.Is(err, creator.ErrNothingBuilt)
}

func formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString("Warnings:")
	for _, warning := range warnings {
		sb.WriteString("\n- ")
		sb.WriteString(warning)
	}
	return sb.String()
}

func truncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= discordMessageLimit {
		return msg
	}
	return string(runes[:discordMessageLimit-1]) + "…"
}
