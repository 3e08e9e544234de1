package config

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func TestHolder_Apply(t *testing.T) {
	h := NewHolder(Langflow{HostURL: "http://default", TimeoutMs: 1000})

	if err := h.Apply(Overlay{FlowID: strPtr("f1"), APIKey: strPtr("key")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got := h.Current()
	if got.HostURL != "http://default" {
		t.Errorf("HostURL = %v, want untouched default", got.HostURL)
	}
	if got.FlowID != "f1" || got.APIKey != "key" {
		t.Errorf("overlay not applied: %+v", got)
	}
	if got.TimeoutMs != 1000 {
		t.Errorf("TimeoutMs = %v, want 1000", got.TimeoutMs)
	}
}

func TestHolder_ApplyRejectsInvalidTimeout(t *testing.T) {
	h := NewHolder(Langflow{TimeoutMs: 1000})
	zero := 0

	if err := h.Apply(Overlay{FlowID: strPtr("f1"), TimeoutMs: &zero}); err == nil {
		t.Fatal("Apply() expected error for zero timeout")
	}
	if got := h.Current(); got.FlowID != "" || got.TimeoutMs != 1000 {
		t.Errorf("rejected overlay partially applied: %+v", got)
	}
}

func TestHolder_WaitReady(t *testing.T) {
	t.Run("returns when ready fires", func(t *testing.T) {
		h := NewHolder(Langflow{TimeoutMs: 1000})
		go func() {
			h.Apply(Overlay{APIEndpoint: strPtr("http://late")})
			h.MarkReady()
		}()

		got := h.WaitReady(context.Background(), 5*time.Second)
		if got.APIEndpoint != "http://late" {
			t.Errorf("APIEndpoint = %q, want http://late", got.APIEndpoint)
		}
	})

	t.Run("bounded by grace", func(t *testing.T) {
		h := NewHolder(Langflow{TimeoutMs: 1000})

		start := time.Now()
		h.WaitReady(context.Background(), 20*time.Millisecond)
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("WaitReady blocked for %v", elapsed)
		}
		if h.IsReady() {
			t.Error("IsReady() = true without MarkReady")
		}
	})

	t.Run("mark ready twice", func(t *testing.T) {
		h := NewHolder(Langflow{TimeoutMs: 1000})
		h.MarkReady()
		h.MarkReady()
		if !h.IsReady() {
			t.Error("IsReady() = false after MarkReady")
		}
	})
}

func TestOverlayLoader_Start(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "flowchat.local.yaml", `
host_url: "http://overlay.local"
flow_id: "overlay-flow"
api_key: "secret"
`)

	h := NewHolder(Langflow{TimeoutMs: 1000})
	loader := NewOverlayLoader(path, h, discardLogger())

	if err := <-loader.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.IsReady() {
		t.Fatal("holder not ready after overlay load")
	}

	got := h.Current()
	if got.HostURL != "http://overlay.local" || got.FlowID != "overlay-flow" || got.APIKey != "secret" {
		t.Errorf("overlay not applied: %+v", got)
	}
}

func TestOverlayLoader_MissingFile(t *testing.T) {
	h := NewHolder(Langflow{HostURL: "http://default", TimeoutMs: 1000})
	loader := NewOverlayLoader(filepath.Join(t.TempDir(), "absent.yaml"), h, discardLogger())

	if err := <-loader.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil for missing overlay", err)
	}
	if !h.IsReady() {
		t.Fatal("holder not ready after missing overlay")
	}
	if got := h.Current(); got.HostURL != "http://default" {
		t.Errorf("HostURL = %v, want default", got.HostURL)
	}
}

func TestOverlayLoader_InvalidFileStillReady(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flowchat.local.yaml", "host_url: [unclosed")

	h := NewHolder(Langflow{TimeoutMs: 1000})
	loader := NewOverlayLoader(path, h, discardLogger())

	if err := <-loader.Start(context.Background()); err == nil {
		t.Fatal("Start() expected parse error")
	}
	if !h.IsReady() {
		t.Fatal("holder must be ready even when the overlay fails")
	}
}

// waitForEndpoint polls h until its api_endpoint equals want.
func waitForEndpoint(t *testing.T, h *Holder, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.Current().APIEndpoint == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("APIEndpoint = %q, want %q", h.Current().APIEndpoint, want)
}

func TestOverlayLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowchat.local.yaml")

	h := NewHolder(Langflow{TimeoutMs: 1000})
	loader := NewOverlayLoader(path, h, discardLogger())
	defer loader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loader.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Created after the watch started
	writeFile(t, dir, "flowchat.local.yaml", "api_endpoint: http://x/run\n")
	waitForEndpoint(t, h, "http://x/run")

	// Rewritten
	writeFile(t, dir, "flowchat.local.yaml", "api_endpoint: http://y/run\n")
	waitForEndpoint(t, h, "http://y/run")

	// Other files in the directory are ignored
	writeFile(t, dir, "other.yaml", "api_endpoint: http://z/run\n")
	time.Sleep(200 * time.Millisecond)
	if got := h.Current().APIEndpoint; got != "http://y/run" {
		t.Errorf("APIEndpoint = %q after unrelated write, want http://y/run", got)
	}

	// No reloads once the context is done
	cancel()
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "flowchat.local.yaml", "api_endpoint: http://after/run\n")
	time.Sleep(200 * time.Millisecond)
	if got := h.Current().APIEndpoint; got != "http://y/run" {
		t.Errorf("APIEndpoint = %q after cancel, want http://y/run", got)
	}
}

func TestOverlayLoader_WatchEmptyPath(t *testing.T) {
	loader := NewOverlayLoader("", NewHolder(Langflow{}), discardLogger())
	if err := loader.Watch(context.Background()); err == nil {
		t.Error("Watch() expected error for empty path")
	}
}
