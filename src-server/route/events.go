package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"nlcal/src-server/creator"
	"nlcal/src-server/extract"
	"nlcal/src-server/utils"
)

const (
	historySource       = "http"
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type createEventsRespBody struct {
	ID       string   `json:"id,omitempty"`
	Calendar string   `json:"calendar,omitempty"`
	Warnings []string `json:"warnings"`
	Status   []string `json:"status"`
	Error    string   `json:"error,omitempty"`
}

type historyEntryRespBody struct {
	ID               string   `json:"id"`
	Source           string   `json:"source"`
	Description      string   `json:"description"`
	EventCount       int      `json:"eventCount"`
	Warnings         []string `json:"warnings"`
	CreatedAtUnixUTC int64    `json:"createdAtUnixUTC"`
}

func Events(muxer *http.ServeMux, as *utils.AppState) {
	limiter := NewRateLimiter(
		as.Config.GetRateLimitRPS(),
		as.Config.GetRateLimitBurst(),
		*as.CreateGracefulShutdownChan(),
	)

	// create a calendar from a description and/or images
	muxer.HandleFunc("POST /api/events", limiter.Middleware(func(w http.ResponseWriter, r *http.Request) {
		// #region - parse request
		description, images, err := parseCreateRequest(r, as.Config.GetImageMaxBytes())
		if err != nil {
			var imageErr *extract.ImageError
			switch {
			case errors.As(err, &imageErr):
				writeJSON(w, http.StatusBadRequest, createEventsRespBody{Error: imageErr.Error()})
			default:
				writeJSON(w, http.StatusBadRequest, createEventsRespBody{Error: "Invalid request body"})
			}
			slog.Debug("bad create request", "error", err)
			return
		}
		// #endregion

		// #region - run the pipeline
		status := make([]string, 0)
		result, err := as.Creator.Create(r.Context(), description, images, func(line string) {
			status = append(status, line)
		})
		if err != nil {
			code := createErrorStatus(err)
			if code >= http.StatusInternalServerError {
				slog.Error("can't create calendar", "error", err)
			}
			writeJSON(w, code, createEventsRespBody{
				Warnings: nonNil(result.Warnings),
				Status:   status,
				Error:    err.Error(),
			})
			return
		}
		// #endregion

		// #region - store & respond
		id := ""
		if as.History != nil {
			startTimer := time.Now()
			id, err = as.History.Save(r.Context(), historySource, description, result.Document, len(result.Events), result.Warnings)
			if err != nil {
				slog.Error("can't save calendar to history", "error", err)
			} else {
				as.MetricChans.ObserveDatabaseWrite(time.Since(startTimer))
			}
		}

		if r.URL.Query().Get("format") == "ics" {
			writeCalendar(w, result.Document, "events.ics")
			return
		}
		writeJSON(w, http.StatusOK, createEventsRespBody{
			ID:       id,
			Calendar: result.Document,
			Warnings: nonNil(result.Warnings),
			Status:   status,
		})
		// #endregion
	}))

	if as.History == nil {
		return
	}

	// list stored calendars, newest first
	muxer.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(parsed, maxHistoryLimit)
		}

		startTimer := time.Now()
		calendarModels, err := as.History.List(r.Context(), limit)
		if err != nil {
			slog.Error("can't list history", "error", err)
			http.Error(w, "Can't list history", http.StatusInternalServerError)
			return
		}
		as.MetricChans.ObserveDatabaseRead(time.Since(startTimer))

		respBody := make([]historyEntryRespBody, 0, len(calendarModels))
		for _, calendarModel := range calendarModels {
			respBody = append(respBody, historyEntryRespBody{
				ID:               calendarModel.ID,
				Source:           calendarModel.Source,
				Description:      calendarModel.Description,
				EventCount:       calendarModel.EventCount,
				Warnings:         nonNil(calendarModel.Warnings),
				CreatedAtUnixUTC: calendarModel.CreatedAtUnixUTC,
			})
		}
		writeJSON(w, http.StatusOK, respBody)
	})
}

// parseCreateRequest accepts multipart and urlencoded forms. Images are only
// read from multipart bodies, under the "image" field.
func parseCreateRequest(r *http.Request, maxImageBytes int64) (string, []extract.Image, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", nil, fmt.Errorf("parseCreateRequest: %w", err)
	}
	description := r.FormValue("description")
	if r.MultipartForm == nil {
		return description, nil, nil
	}

	headers := r.MultipartForm.File["image"]
	images := make([]extract.Image, 0, len(headers))
	for _, header := range headers {
		image, err := readImage(header, maxImageBytes)
		if err != nil {
			return "", nil, fmt.Errorf("parseCreateRequest: %w", err)
		}
		images = append(images, image)
	}
	return description, images, nil
}

func readImage(header *multipart.FileHeader, maxImageBytes int64) (extract.Image, error) {
	file, err := header.Open()
	if err != nil {
		return extract.Image{}, err
	}
	defer file.Close()

	// one extra byte so NewImage can tell "exactly the limit" from "over it"
	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return extract.Image{}, err
	}
	return extract.NewImage(header.Filename, data, maxImageBytes)
}

func createErrorStatus(err error) int {
	switch {
	case errors.Is(err, creator.ErrEmptyRequest):
		return http.StatusBadRequest
	case errors.Is(err, creator.ErrNoEvents), errors.Is(err, creator.ErrNothingBuilt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("can't write to response", "where", "route/events.go", "err", err)
	}
}

func writeCalendar(w http.ResponseWriter, document, filename string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, document); err != nil {
		slog.Warn("can't write to response", "where", "route/events.go", "err", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
