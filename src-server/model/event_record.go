package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// keys every extracted event must carry before it can be built
var RequiredEventFields = []string{"uid", "title", "start_time", "end_time", "date", "timezone"}

// One event as extracted by the LLM, after validation.
type EventRecord struct {
	UID         string `json:"uid"`
	Title       string `json:"title"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Date        string `json:"date"`
	Timezone    string `json:"timezone"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

type ValidationError struct {
	Title   string
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Skipping '%s' - missing required fields: %s", e.Title, strings.Join(e.Missing, ", "))
}

// EventRecordFromMap validates a raw event object. index is the position of
// the event in the batch and is only used to name untitled events.
func EventRecordFromMap(raw map[string]any, index int) (EventRecord, error) {
	missing := make([]string, 0)
	for _, key := range RequiredEventFields {
		if v, ok := raw[key]; !ok || v == nil {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		title := stringify(raw["title"])
		if title == "" {
			title = fmt.Sprintf("Event %d", index+1)
		}
		return EventRecord{}, &ValidationError{Title: title, Missing: missing}
	}

	record := EventRecord{
		UID:         strings.TrimSpace(stringify(raw["uid"])),
		Title:       strings.TrimSpace(stringify(raw["title"])),
		StartTime:   stringify(raw["start_time"]),
		EndTime:     stringify(raw["end_time"]),
		Date:        stringify(raw["date"]),
		Timezone:    stringify(raw["timezone"]),
		Description: stringify(raw["description"]),
		Location:    strings.TrimSpace(stringify(raw["location"])),
	}
	if record.UID == "" {
		record.UID = uuid.NewString()
	}
	return record, nil
}

// LLMs are not strict about types, a uid of 42 is still a uid
func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
