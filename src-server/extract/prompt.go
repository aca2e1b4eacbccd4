package extract

import (
	"fmt"
	"time"
)

const ImagesOnlyDescription = "Event details are provided via attached images."

const SystemPrompt = `
Follow these steps to extract event details and return them as a JSON array:

1. Carefully parse the event details (text and any image context) to identify if multiple distinct events are described. If so, process each one separately.

2. For each event, extract all relevant information such as event title, date, time, location, and description.

   **IMPORTANT TIME HANDLING**:
   - Extract times EXACTLY as mentioned in the input (e.g., "3 PM", "19:30", "7:30pm")
   - Do NOT attempt timezone conversions - preserve the original time as stated
   - If a timezone is explicitly mentioned, include it in the time string
   - If no timezone is specified, assume it's in the user's local timezone
   - For relative dates like "tomorrow", "next Friday", calculate based on the provided current date
   - If end time is not specified, estimate a reasonable duration (e.g., 1 hour for meetings, 2-3 hours for dinners)

3. Return a **JSON array**, one object per event.
   Keys REQUIRED per event:
     - "uid"          : stable unique string (use UUID if needed, no @domain required)
     - "title"        : human title
     - "start_time"   : time string as extracted (e.g., "7:30 PM", "19:30", "3:00 PM EST")
     - "end_time"     : time string as extracted or estimated (e.g., "9:00 PM", "21:30")
     - "date"         : date string (e.g., "2024-08-15", "March 30, 2024")
     - "timezone"     : timezone if explicitly mentioned, otherwise "local"
     - "description"  : plain text (no special escaping needed)
     - "location"     : plain text address or venue name, or "" if none provided

   Example JSON Output:
   ` + "```json" + `
   [
     {
       "uid": "uuid-some-unique-id-1",
       "title": "Dinner with Mia",
       "start_time": "7:30 PM",
       "end_time": "9:00 PM",
       "date": "2024-08-15",
       "timezone": "local",
       "description": "Catch up dinner.",
       "location": "Balthasar Restaurant"
     }
   ]
   ` + "```" + `

4. Ensure the output is ONLY the JSON array, with no introductory text or explanations.
`

const userPromptTemplate = `
<event_description>
%s
</event_description>

Today's date is %s, %s.
Current timezone: %s
`

// BuildPrompt renders the user turn. now carries the caller's timezone.
func BuildPrompt(description string, now time.Time) string {
	if description == "" {
		description = ImagesOnlyDescription
	}
	zone := fmt.Sprintf("%s (%s)", now.Location().String(), now.Format("MST, UTC-07:00"))
	return fmt.Sprintf(userPromptTemplate,
		description,
		now.Format("Monday"),
		now.Format("January 02, 2006"),
		zone,
	)
}
