package extract

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(t *testing.T, status int, reply string, inspect func(r *http.Request, body map[string]any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		if inspect != nil {
			inspect(r, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}
}

func testRequest() Request {
	return Request{
		System: "system rules",
		History: []Turn{{Role: "user", Parts: []Part{
			{MimeType: "image/png", Data: []byte("png-bytes")},
		}}},
		Prompt: "the prompt",
		Config: DefaultGenerationConfig(),
	}
}

func TestGeminiTransportGenerate(t *testing.T) {
	t.Parallel()
	var gotPath, gotKey string
	var gotBody map[string]any
	server := httptest.NewServer(jsonHandler(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"[{\"title\":","thought":false},{"text":"\"x\"}]"}]}}]}`,
		func(r *http.Request, body map[string]any) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("x-goog-api-key")
			gotBody = body
		}))
	defer server.Close()

	transport := NewGeminiTransport(server.URL+"/v1beta", "secret-key", 5*time.Second)
	reply, err := transport.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	text, err := reply.Normalize()
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"x"}]`, text)

	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "secret-key", gotKey)

	contents := gotBody["contents"].([]any)
	require.Len(t, contents, 2)
	imageTurn := contents[0].(map[string]any)
	inline := imageTurn["parts"].([]any)[0].(map[string]any)["inline_data"].(map[string]any)
	assert.Equal(t, "image/png", inline["mime_type"])
	assert.Equal(t, "cG5nLWJ5dGVz", inline["data"])
	assert.Equal(t, "the prompt", contents[1].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"])

	config := gotBody["generationConfig"].(map[string]any)
	assert.InDelta(t, 0.3, config["topP"], 1e-9)
	assert.InDelta(t, 64, config["topK"], 1e-9)
	assert.InDelta(t, 8192, config["maxOutputTokens"], 1e-9)
	assert.Equal(t, "system rules", gotBody["system_instruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"])
}

func TestGeminiTransportErrorEnvelope(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(jsonHandler(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT","details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","reason":"API_KEY_INVALID"}]}}`,
		nil))
	defer server.Close()

	_, err := NewGeminiTransport(server.URL, "bad", 0).Generate(context.Background(), testRequest())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 400, statusErr.Code)
	assert.Equal(t, "API_KEY_INVALID", statusErr.Reason)
	assert.True(t, IsAPIKeyError(err))
	assert.Equal(t, Terminal, Classify(err))
}

func TestGeminiTransportUnavailable(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(jsonHandler(t, http.StatusServiceUnavailable,
		`{"error":{"code":503,"message":"The model is overloaded. Please try again later.","status":"UNAVAILABLE"}}`,
		nil))
	defer server.Close()

	_, err := NewGeminiTransport(server.URL, "key", 0).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Service Unavailable")
	assert.Equal(t, Retryable, Classify(err))
}

func TestGeminiTransportNoCandidates(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(jsonHandler(t, http.StatusOK, `{"candidates":[]}`, nil))
	defer server.Close()

	reply, err := NewGeminiTransport(server.URL, "key", 0).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	_, err = reply.Normalize()
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAITransportGenerate(t *testing.T) {
	t.Parallel()
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(jsonHandler(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"[]"}}]}`,
		func(r *http.Request, body map[string]any) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			gotAuth = r.Header.Get("Authorization")
			gotBody = body
		}))
	defer server.Close()

	req := testRequest()
	req.Config.Model = "llama-3.2-90b-vision-preview"
	reply, err := NewOpenAITransport(server.URL+"/v1", "groq-key", 0).Generate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply.Text)
	assert.Equal(t, "[]", *reply.Text)

	assert.Equal(t, "Bearer groq-key", gotAuth)
	assert.Equal(t, "llama-3.2-90b-vision-preview", gotBody["model"])
	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	imagePart := messages[1].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "image_url", imagePart["type"])
	assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", imagePart["image_url"].(map[string]any)["url"])
	assert.Equal(t, "the prompt", messages[2].(map[string]any)["content"])
}

func TestOpenAITransportErrorEnvelope(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(jsonHandler(t, http.StatusUnauthorized,
		`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`,
		nil))
	defer server.Close()

	_, err := NewOpenAITransport(server.URL, "bad", 0).Generate(context.Background(), testRequest())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "invalid_api_key", statusErr.Status)
	assert.True(t, IsAPIKeyError(err))
}

func TestTransportUploadRejectsEmptyImage(t *testing.T) {
	t.Parallel()
	for _, transport := range []Transport{NewGeminiTransport("", "k", 0), NewOpenAITransport("", "k", 0)} {
		_, err := transport.Upload(context.Background(), Image{Name: "blank.png"})
		var imgErr *ImageError
		assert.ErrorAs(t, err, &imgErr)

		part, err := transport.Upload(context.Background(), Image{Name: "a.png", MimeType: "image/png", Data: []byte{1}})
		require.NoError(t, err)
		assert.Equal(t, "image/png", part.MimeType)
	}
}
