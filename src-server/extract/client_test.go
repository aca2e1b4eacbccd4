package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu        sync.Mutex
	replies   []Reply
	errs      []error
	uploadErr error
	requests  []Request
	uploads   int
}

func (f *fakeTransport) Upload(ctx context.Context, image Image) (Part, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return Part{}, f.uploadErr
	}
	return Part{MimeType: image.MimeType, Data: image.Data}, nil
}

func (f *fakeTransport) Generate(ctx context.Context, req Request) (Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return Reply{}, f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) status(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

const dinnerJSON = `[{"uid":"uuid-1","title":"Dinner with Mia","start_time":"7:30 PM","end_time":"9:00 PM","date":"2024-08-15","timezone":"local","description":"","location":"Balthasar"}]`

func newTestClient(transport Transport, sleeps *[]time.Duration) *Client {
	return NewClient(transport,
		WithLocation(time.UTC),
		WithClock(func() time.Time { return time.Date(2024, time.August, 15, 10, 0, 0, 0, time.UTC) }),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		}),
	)
}

func TestExtractRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	unavailable := &StatusError{Code: 503, Status: "UNAVAILABLE", Message: "The model is overloaded."}
	transport := &fakeTransport{
		errs:    []error{unavailable, unavailable},
		replies: []Reply{{}, {}, TextReply(dinnerJSON)},
	}
	var sleeps []time.Duration
	var retries []int
	client := newTestClient(transport, &sleeps)
	client.onRetry = func(attempt int, err error) { retries = append(retries, attempt) }
	rec := &recorder{}

	events, err := client.Extract(context.Background(), "Dinner with Mia", nil, rec.status)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Dinner with Mia", events[0]["title"])

	assert.Len(t, transport.requests, 3)
	assert.GreaterOrEqual(t, len(rec.lines), 3)
	assert.Equal(t, []string{
		"Attempting to get event details... (Try 1/5)",
		"Error occurred (StatusError), retrying in 1 seconds...",
		"Attempting to get event details... (Try 2/5)",
		"Error occurred (StatusError), retrying in 2 seconds...",
		"Attempting to get event details... (Try 3/5)",
		"Successfully extracted 1 event(s).",
	}, rec.lines)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestExtractAPIKeyErrorStopsImmediately(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{
		errs:    []error{&StatusError{Code: 400, Status: "INVALID_ARGUMENT", Message: "API key expired. Please renew the API key.", Reason: "API_KEY_INVALID"}},
		replies: []Reply{TextReply(dinnerJSON)},
	}
	client := newTestClient(transport, nil)
	rec := &recorder{}

	_, err := client.Extract(context.Background(), "x", nil, rec.status)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "API key has expired. Please renew your Gemini API key.", apiErr.Message)
	assert.Len(t, transport.requests, 1)
	assert.Equal(t, []string{"Attempting to get event details... (Try 1/5)"}, rec.lines)
}

func TestExtractTerminalErrorSurfaces(t *testing.T) {
	t.Parallel()
	permission := &StatusError{Code: 403, Status: "PERMISSION_DENIED", Message: "Caller lacks permission."}
	transport := &fakeTransport{errs: []error{permission}, replies: []Reply{TextReply(dinnerJSON)}}
	client := newTestClient(transport, nil)
	rec := &recorder{}

	_, err := client.Extract(context.Background(), "x", nil, rec.status)
	require.Error(t, err)
	assert.ErrorIs(t, err, permission)
	assert.Len(t, transport.requests, 1)
	assert.Equal(t, "Error: StatusError - this error cannot be retried.", rec.lines[len(rec.lines)-1])
}

func TestExtractExhaustsRetries(t *testing.T) {
	t.Parallel()
	timeout := errors.New("request timeout")
	transport := &fakeTransport{
		errs:    []error{timeout, timeout, timeout, timeout, timeout, timeout},
		replies: []Reply{TextReply(dinnerJSON)},
	}
	var sleeps []time.Duration
	client := newTestClient(transport, &sleeps)
	client.config.MaxBackoff = 3 * time.Second
	rec := &recorder{}

	_, err := client.Extract(context.Background(), "x", nil, rec.status)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.ErrorIs(t, err, timeout)
	assert.Len(t, transport.requests, 5)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, sleeps)
	assert.Equal(t, StatusMaxRetries, rec.lines[len(rec.lines)-1])
}

func TestExtractRetriesInvalidJSON(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{
		replies: []Reply{TextReply("Sure! Here are your events"), PartsReply(ReplyPart{Text: "```json\n"}, ReplyPart{Text: dinnerJSON + "\n```"})},
	}
	client := newTestClient(transport, nil)

	events, err := client.Extract(context.Background(), "x", nil, nil)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, transport.requests, 2)
}

func TestExtractContextCancelled(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{errs: []error{errors.New("connection reset")}, replies: []Reply{TextReply(dinnerJSON)}}
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(transport, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}))

	_, err := client.Extract(ctx, "x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, transport.requests, 1)
}

// gatedTransport holds every Generate call until release is closed.
type gatedTransport struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTransport) Upload(ctx context.Context, image Image) (Part, error) {
	return Part{MimeType: image.MimeType, Data: image.Data}, nil
}

func (g *gatedTransport) Generate(ctx context.Context, req Request) (Reply, error) {
	g.entered <- struct{}{}
	<-g.release
	return TextReply(dinnerJSON), nil
}

func TestExtractWaitingCallerHonorsDeadline(t *testing.T) {
	t.Parallel()
	transport := &gatedTransport{entered: make(chan struct{}, 1), release: make(chan struct{})}
	client := newTestClient(transport, nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := client.Extract(context.Background(), "first", nil, nil)
		firstDone <- err
	}()
	<-transport.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := client.Extract(ctx, "second", nil, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 500*time.Millisecond)

	close(transport.release)
	require.NoError(t, <-firstDone)

	// the slot is free again once the first call returns
	events, err := client.Extract(context.Background(), "third", nil, nil)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestExtractBackoffSchedule(t *testing.T) {
	t.Parallel()
	timeout := errors.New("request timeout")
	cases := []struct {
		name       string
		maxRetries int
		base       time.Duration
		maxBackoff time.Duration
		want       []time.Duration
	}{
		{
			name:       "doubles up to the cap",
			maxRetries: 6,
			base:       time.Second,
			maxBackoff: 10 * time.Second,
			want:       []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second},
		},
		{
			name:       "zero cap leaves the schedule uncapped",
			maxRetries: 4,
			base:       time.Second,
			maxBackoff: 0,
			want:       []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		},
		{
			name:       "base above the cap is clamped",
			maxRetries: 3,
			base:       5 * time.Second,
			maxBackoff: 2 * time.Second,
			want:       []time.Duration{2 * time.Second, 2 * time.Second},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			errs := make([]error, tc.maxRetries)
			for i := range errs {
				errs[i] = timeout
			}
			transport := &fakeTransport{errs: errs, replies: []Reply{TextReply(dinnerJSON)}}
			var sleeps []time.Duration
			client := newTestClient(transport, &sleeps)
			client.config.MaxRetries = tc.maxRetries
			client.config.BaseDelay = tc.base
			client.config.MaxBackoff = tc.maxBackoff

			_, err := client.Extract(context.Background(), "x", nil, nil)
			var exhausted *RetryExhaustedError
			require.ErrorAs(t, err, &exhausted)
			assert.Equal(t, tc.want, sleeps)
		})
	}
}

func TestExtractImages(t *testing.T) {
	t.Parallel()
	images := []Image{{Name: "poster.png", MimeType: "image/png", Data: []byte{1, 2, 3}}}

	t.Run("attached as leading user turn", func(t *testing.T) {
		t.Parallel()
		transport := &fakeTransport{replies: []Reply{TextReply(dinnerJSON)}}
		_, err := newTestClient(transport, nil).Extract(context.Background(), "", images, nil)
		require.NoError(t, err)

		req := transport.requests[0]
		require.Len(t, req.History, 1)
		assert.Equal(t, "user", req.History[0].Role)
		assert.Equal(t, []byte{1, 2, 3}, req.History[0].Parts[0].Data)
		assert.Contains(t, req.Prompt, ImagesOnlyDescription)
		assert.Equal(t, SystemPrompt, req.System)
	})

	t.Run("failed upload is skipped", func(t *testing.T) {
		t.Parallel()
		transport := &fakeTransport{uploadErr: errors.New("disk on fire"), replies: []Reply{TextReply(dinnerJSON)}}
		_, err := newTestClient(transport, nil).Extract(context.Background(), "desc", images, nil)
		require.NoError(t, err)
		assert.Empty(t, transport.requests[0].History)
	})

	t.Run("api key upload failure is terminal", func(t *testing.T) {
		t.Parallel()
		transport := &fakeTransport{uploadErr: errors.New("invalid api key"), replies: []Reply{TextReply(dinnerJSON)}}
		_, err := newTestClient(transport, nil).Extract(context.Background(), "desc", images, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Empty(t, transport.requests)
		assert.Equal(t, 1, transport.uploads)
	})
}

func TestParseEvents(t *testing.T) {
	t.Parallel()

	events, err := ParseEvents("```json\n" + dinnerJSON + "\n```")
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = ParseEvents("```\n{\"title\":\"Solo\"}\n```")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Solo", events[0]["title"])

	events, err = ParseEvents(`[{"title":"a"}, "junk", 3, {"title":"b"}]`)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[1]["title"])

	_, err = ParseEvents("not json")
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.True(t, strings.HasPrefix(respErr.Error(), "LLM returned invalid JSON"))
	assert.Equal(t, Retryable, Classify(err))

	_, err = ParseEvents(`"just a string"`)
	require.ErrorAs(t, err, &respErr)
}

func TestReplyNormalize(t *testing.T) {
	t.Parallel()

	text, err := TextReply("hello").Normalize()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	text, err = PartsReply(ReplyPart{Text: "thinking...", Thought: true}, ReplyPart{Text: "["}, ReplyPart{Text: "]"}).Normalize()
	require.NoError(t, err)
	assert.Equal(t, "[]", text)

	for _, reply := range []Reply{TextReply("  \n"), PartsReply(), {}} {
		_, err = reply.Normalize()
		assert.ErrorIs(t, err, ErrEmptyResponse)
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2024, time.August, 15, 10, 0, 0, 0, loc)

	prompt := BuildPrompt("Dinner with Mia", now)
	assert.Contains(t, prompt, "<event_description>\nDinner with Mia\n</event_description>")
	assert.Contains(t, prompt, "Today's date is Thursday, August 15, 2024.")
	assert.Contains(t, prompt, "Current timezone: America/New_York (EDT, UTC-04:00)")
}
