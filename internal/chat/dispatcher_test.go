package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/flowchat/internal/api/langflow"
	"github.com/tjfontaine/flowchat/internal/config"
	"github.com/tjfontaine/flowchat/internal/reply"
	"github.com/tjfontaine/flowchat/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type runCall struct {
	endpoint string
	apiKey   string
	req      *langflow.RunRequest
}

// fakeRunner records calls and returns a canned body or error. When block is
// set, Run signals entered and waits for block to close or ctx to end.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runCall
	body    []byte
	err     error
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, endpoint, apiKey string, req *langflow.RunRequest) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{endpoint: endpoint, apiKey: apiKey, req: req})
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.body, f.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func configured() config.Langflow {
	return config.Langflow{HostURL: "http://langflow.test/", FlowID: "f1", TimeoutMs: 1000}
}

func TestDispatcher_Unconfigured(t *testing.T) {
	runner := &fakeRunner{body: []byte(`{"text":"never"}`)}
	d := NewDispatcher(runner, discardLogger())
	tr := transcript.New()

	_, err := d.Send(context.Background(), "hi", config.Langflow{TimeoutMs: 1000}, tr)
	if KindOf(err) != KindConfiguration {
		t.Fatalf("Send() error = %v, want configuration error", err)
	}
	if runner.callCount() != 0 {
		t.Errorf("runner called %d times, want 0", runner.callCount())
	}
	if !tr.IsEmpty() {
		t.Error("transcript modified on configuration error")
	}
}

func TestDispatcher_Success(t *testing.T) {
	runner := &fakeRunner{body: []byte(`{"outputs":[{"outputs":[{"results":{"message":{"content":"hello"}}}]}]}`)}
	d := NewDispatcher(runner, discardLogger())
	tr := transcript.New()

	cfg := configured()
	cfg.APIKey = "sk-1"

	got, err := d.Send(context.Background(), "hi", cfg, tr)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("Send() = %q, want hello", got)
	}

	want := []transcript.Turn{
		{Role: transcript.RoleUser, Content: "hi"},
		{Role: transcript.RoleAssistant, Content: "hello"},
	}
	turns := tr.Snapshot()
	if len(turns) != 2 || turns[0] != want[0] || turns[1] != want[1] {
		t.Errorf("transcript = %+v, want %+v", turns, want)
	}

	call := runner.calls[0]
	if call.endpoint != "http://langflow.test/api/v1/run/f1" {
		t.Errorf("endpoint = %q", call.endpoint)
	}
	if call.apiKey != "sk-1" {
		t.Errorf("apiKey = %q", call.apiKey)
	}
	if call.req.ChatHistory != nil {
		t.Errorf("first request carried history: %+v", call.req.ChatHistory)
	}
}

func TestDispatcher_SendsHistory(t *testing.T) {
	runner := &fakeRunner{body: []byte(`{"text":"second"}`)}
	d := NewDispatcher(runner, discardLogger())
	tr := transcript.New()
	tr.AppendExchange("first", "reply")

	if _, err := d.Send(context.Background(), "again", configured(), tr); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	history := runner.calls[0].req.ChatHistory
	if len(history) != 2 || history[0].Content != "first" || history[1].Role != transcript.RoleAssistant {
		t.Errorf("chat_history = %+v", history)
	}
	if tr.Len() != 4 {
		t.Errorf("transcript len = %d, want 4", tr.Len())
	}
}

func TestDispatcher_FailuresLeaveTranscriptUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		runner   *fakeRunner
		wantKind ErrorKind
	}{
		{
			name:     "http error",
			runner:   &fakeRunner{err: &langflow.StatusError{StatusCode: 502, StatusText: "Bad Gateway", Body: "upstream down"}},
			wantKind: KindHTTP,
		},
		{
			name:     "malformed body",
			runner:   &fakeRunner{body: []byte(`<html>oops</html>`)},
			wantKind: KindMalformedResponse,
		},
		{
			name:     "empty reply",
			runner:   &fakeRunner{body: []byte(`{"text":""}`)},
			wantKind: KindEmptyResponse,
		},
		{
			name:     "blank reply",
			runner:   &fakeRunner{body: []byte(`{"message":"   "}`)},
			wantKind: KindEmptyResponse,
		},
		{
			name:     "oversized body",
			runner:   &fakeRunner{err: fmt.Errorf("%w: over 8388608 bytes", langflow.ErrResponseTooLarge)},
			wantKind: KindMalformedResponse,
		},
		{
			name:     "transport error",
			runner:   &fakeRunner{err: errors.New("connection refused")},
			wantKind: KindTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.runner, discardLogger())
			tr := transcript.New()
			tr.AppendExchange("earlier", "answer")

			_, err := d.Send(context.Background(), "hi", configured(), tr)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("Send() error = %v, want kind %s", err, tt.wantKind)
			}
			if tr.Len() != 2 {
				t.Errorf("transcript len = %d, want 2", tr.Len())
			}
		})
	}
}

func TestDispatcher_HTTPErrorCapturesBody(t *testing.T) {
	runner := &fakeRunner{err: &langflow.StatusError{StatusCode: 404, StatusText: "Not Found", Body: `{"detail":"no flow"}`}}
	d := NewDispatcher(runner, discardLogger())

	_, err := d.Send(context.Background(), "hi", configured(), transcript.New())

	var chatErr *Error
	if !errors.As(err, &chatErr) {
		t.Fatalf("Send() error = %v, want *Error", err)
	}
	if chatErr.StatusCode != 404 || chatErr.StatusText != "Not Found" || chatErr.Body != `{"detail":"no flow"}` {
		t.Errorf("error = %+v", chatErr)
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	d := NewDispatcher(langflow.NewClient(langflow.WithHTTPClient(ts.Client())), discardLogger())
	tr := transcript.New()
	cfg := config.Langflow{APIEndpoint: ts.URL, TimeoutMs: 50}

	start := time.Now()
	_, err := d.Send(context.Background(), "hi", cfg, tr)
	if KindOf(err) != KindTimeout {
		t.Fatalf("Send() error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	if !tr.IsEmpty() {
		t.Error("transcript modified on timeout")
	}
	if got := UserMessage(err); got != "Request timeout. Please try again." {
		t.Errorf("UserMessage() = %q", got)
	}
}

func TestDispatcher_Canceled(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	d := NewDispatcher(runner, discardLogger())
	tr := transcript.New()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-runner.entered
		cancel()
	}()

	_, err := d.Send(ctx, "hi", configured(), tr)
	if KindOf(err) != KindCanceled {
		t.Fatalf("Send() error = %v, want canceled", err)
	}
	if !tr.IsEmpty() {
		t.Error("transcript modified on cancel")
	}
}

func TestDispatcher_FallbackReplyIsReturned(t *testing.T) {
	runner := &fakeRunner{body: []byte(`{"unexpected":true}`)}
	d := NewDispatcher(runner, discardLogger())

	got, err := d.Send(context.Background(), "hi", configured(), transcript.New())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !reply.IsFallback(got) {
		t.Errorf("Send() = %q, want raw fallback", got)
	}
}
