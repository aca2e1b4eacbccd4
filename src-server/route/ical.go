package route

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"nlcal/src-server/utils"
)

// Ical serves stored calendars so calendar apps can import them by URL.
func Ical(muxer *http.ServeMux, as *utils.AppState) {
	if as.History == nil {
		return
	}
	muxer.HandleFunc("GET /ical/{calendar_id}", func(w http.ResponseWriter, r *http.Request) {
		calendarID := r.PathValue("calendar_id")

		startTimer := time.Now()
		calendarModel, err := as.History.Get(r.Context(), calendarID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "Calendar not found", http.StatusNotFound)
			return
		case err != nil:
			slog.Error("can't get calendar", "id", calendarID, "error", err)
			http.Error(w, "Can't get calendar", http.StatusInternalServerError)
			return
		}
		as.MetricChans.ObserveDatabaseRead(time.Since(startTimer))

		writeCalendar(w, calendarModel.Document, calendarID+".ics")
	})
}
