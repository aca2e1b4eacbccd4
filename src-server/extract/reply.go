package extract

import "strings"

// Reply is what a transport got back: either one flat text (chat completion
// style) or a list of typed parts (Gemini style). Exactly one is set.
type Reply struct {
	Text  *string
	Parts []ReplyPart
}

type ReplyPart struct {
	Text string
	// Thought parts are model reasoning and never part of the answer.
	Thought bool
}

func TextReply(text string) Reply {
	return Reply{Text: &text}
}

func PartsReply(parts ...ReplyPart) Reply {
	return Reply{Parts: parts}
}

// Normalize collapses the reply into the answer text.
func (r Reply) Normalize() (string, error) {
	var text string
	if r.Text != nil {
		text = *r.Text
	} else {
		var sb strings.Builder
		for _, part := range r.Parts {
			if part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
		text = sb.String()
	}
	if strings.TrimSpace(text) == "" {
		return "", &ResponseError{Message: ErrEmptyResponse.Error(), Err: ErrEmptyResponse}
	}
	return text, nil
}
