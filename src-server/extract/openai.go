package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultOpenAIBaseURL = "https://api.groq.com/openai/v1"

// OpenAITransport speaks the chat completions protocol shared by OpenAI, Groq
// and most self-hosted gateways.
type OpenAITransport struct {
	client *resty.Client
}

func NewOpenAITransport(baseURL, apiKey string, timeout time.Duration) *OpenAITransport {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &OpenAITransport{client: client}
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequest struct {
	Messages    []openAIMessage `json:"messages"`
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	TopP        float64         `json:"top_p"`
	Stream      bool            `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (o *OpenAITransport) Upload(ctx context.Context, image Image) (Part, error) {
	if len(image.Data) == 0 {
		return Part{}, fmt.Errorf("(*OpenAITransport).Upload: %w", &ImageError{Name: image.Name, Reason: "empty image"})
	}
	return Part{MimeType: image.MimeType, Data: image.Data}, nil
}

func (o *OpenAITransport) Generate(ctx context.Context, req Request) (Reply, error) {
	body := openAIRequest{
		Model:       req.Config.Model,
		Temperature: req.Config.Temperature,
		MaxTokens:   req.Config.MaxOutputTokens,
		TopP:        req.Config.TopP,
		Stream:      false,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.History {
		parts := make([]openAIContentPart, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			if len(part.Data) > 0 {
				url := "data:" + part.MimeType + ";base64," + base64.StdEncoding.EncodeToString(part.Data)
				parts = append(parts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: url}})
				continue
			}
			parts = append(parts, openAIContentPart{Type: "text", Text: part.Text})
		}
		body.Messages = append(body.Messages, openAIMessage{Role: turn.Role, Content: parts})
	}
	body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: req.Prompt})

	var result openAIResponse
	var failure openAIErrorEnvelope
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return Reply{}, fmt.Errorf("(*OpenAITransport).Generate: %w", err)
	}
	if resp.IsError() {
		statusErr := &StatusError{
			Code:    resp.StatusCode(),
			Message: failure.Error.Message,
			Reason:  failure.Error.Type,
		}
		if failure.Error.Code != nil {
			statusErr.Status = fmt.Sprint(failure.Error.Code)
		}
		if statusErr.Message == "" {
			statusErr.Message = strings.TrimSpace(string(resp.Body()))
		}
		return Reply{}, fmt.Errorf("(*OpenAITransport).Generate: %w", statusErr)
	}

	if len(result.Choices) == 0 {
		return TextReply(""), nil
	}
	return TextReply(result.Choices[0].Message.Content), nil
}
