package extract

import "context"

type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Part is one piece of a conversation turn: text, or an uploaded image.
type Part struct {
	Text     string
	MimeType string
	Data     []byte
}

type Turn struct {
	Role  string
	Parts []Part
}

type GenerationConfig struct {
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	TopK             int     `yaml:"top_k"`
	MaxOutputTokens  int     `yaml:"max_output_tokens"`
	ResponseMimeType string  `yaml:"response_mime_type"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:            "gemini-2.0-flash",
		Temperature:      0,
		TopP:             0.3,
		TopK:             64,
		MaxOutputTokens:  8192,
		ResponseMimeType: "text/plain",
	}
}

type Request struct {
	System  string
	History []Turn
	Prompt  string
	Config  GenerationConfig
}

// Transport talks to one LLM provider.
type Transport interface {
	// Upload makes an image usable as a Part of a later Generate call.
	Upload(ctx context.Context, image Image) (Part, error)
	Generate(ctx context.Context, req Request) (Reply, error)
}
