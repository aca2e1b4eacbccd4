package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiTransport calls the Gemini generateContent endpoint. Images are sent
// inline with the request.
type GeminiTransport struct {
	client *resty.Client
}

func NewGeminiTransport(baseURL, apiKey string, timeout time.Duration) *GeminiTransport {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", apiKey)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &GeminiTransport{client: client}
}

// #region | wire types
type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	TopK             int     `json:"topK,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text    string `json:"text"`
				Thought bool   `json:"thought"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// #endregion

func (g *GeminiTransport) Upload(ctx context.Context, image Image) (Part, error) {
	if len(image.Data) == 0 {
		return Part{}, fmt.Errorf("(*GeminiTransport).Upload: %w", &ImageError{Name: image.Name, Reason: "empty image"})
	}
	return Part{MimeType: image.MimeType, Data: image.Data}, nil
}

func (g *GeminiTransport) Generate(ctx context.Context, req Request) (Reply, error) {
	body := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.History)+1),
		GenerationConfig: geminiGenerationConfig{
			Temperature:      req.Config.Temperature,
			TopP:             req.Config.TopP,
			TopK:             req.Config.TopK,
			MaxOutputTokens:  req.Config.MaxOutputTokens,
			ResponseMimeType: req.Config.ResponseMimeType,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, turn := range req.History {
		content := geminiContent{Role: turn.Role, Parts: make([]geminiPart, 0, len(turn.Parts))}
		for _, part := range turn.Parts {
			if len(part.Data) > 0 {
				content.Parts = append(content.Parts, geminiPart{InlineData: &geminiBlob{MimeType: part.MimeType, Data: part.Data}})
				continue
			}
			content.Parts = append(content.Parts, geminiPart{Text: part.Text})
		}
		body.Contents = append(body.Contents, content)
	}
	body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}})

	var result geminiResponse
	var failure geminiErrorEnvelope
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post("/models/" + req.Config.Model + ":generateContent")
	if err != nil {
		return Reply{}, fmt.Errorf("(*GeminiTransport).Generate: %w", err)
	}
	if resp.IsError() {
		statusErr := &StatusError{
			Code:    resp.StatusCode(),
			Status:  failure.Error.Status,
			Message: failure.Error.Message,
		}
		for _, detail := range failure.Error.Details {
			if detail.Reason != "" {
				statusErr.Reason = detail.Reason
				break
			}
		}
		if statusErr.Message == "" {
			statusErr.Message = strings.TrimSpace(string(resp.Body()))
		}
		return Reply{}, fmt.Errorf("(*GeminiTransport).Generate: %w", statusErr)
	}

	if len(result.Candidates) == 0 {
		if result.PromptFeedback.BlockReason != "" {
			return Reply{}, &ResponseError{Message: "prompt was blocked: " + result.PromptFeedback.BlockReason}
		}
		return PartsReply(), nil
	}
	parts := make([]ReplyPart, 0, len(result.Candidates[0].Content.Parts))
	for _, part := range result.Candidates[0].Content.Parts {
		parts = append(parts, ReplyPart{Text: part.Text, Thought: part.Thought})
	}
	return PartsReply(parts...), nil
}
