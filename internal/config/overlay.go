package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Overlay carries optional overrides for the Langflow record. Nil fields are
// left untouched.
type Overlay struct {
	UseEmbedWidget *bool   `koanf:"use_embed_widget"`
	HostURL        *string `koanf:"host_url"`
	FlowID         *string `koanf:"flow_id"`
	APIEndpoint    *string `koanf:"api_endpoint"`
	APIKey         *string `koanf:"api_key"`
	TimeoutMs      *int    `koanf:"timeout_ms"`
}

func (o Overlay) mergeInto(base Langflow) Langflow {
	if o.UseEmbedWidget != nil {
		base.UseEmbedWidget = *o.UseEmbedWidget
	}
	if o.HostURL != nil {
		base.HostURL = *o.HostURL
	}
	if o.FlowID != nil {
		base.FlowID = *o.FlowID
	}
	if o.APIEndpoint != nil {
		base.APIEndpoint = *o.APIEndpoint
	}
	if o.APIKey != nil {
		base.APIKey = substituteEnvVars(*o.APIKey)
	}
	if o.TimeoutMs != nil {
		base.TimeoutMs = *o.TimeoutMs
	}
	return base
}

// ReadOverlay parses the overlay file at path. A missing file yields an error
// matching fs.ErrNotExist.
func ReadOverlay(path string) (Overlay, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Overlay{}, err
	}

	var o Overlay
	if err := k.Unmarshal("", &o); err != nil {
		return Overlay{}, fmt.Errorf("decode overlay %s: %w", path, err)
	}
	return o, nil
}

// OverlayLoader applies an overlay file to a Holder, once at startup and
// optionally again whenever the file changes.
type OverlayLoader struct {
	path    string
	holder  *Holder
	logger  *slog.Logger
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewOverlayLoader creates a loader for path.
func NewOverlayLoader(path string, holder *Holder, logger *slog.Logger) *OverlayLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverlayLoader{
		path:   path,
		holder: holder,
		logger: logger,
	}
}

// Load applies the overlay once. A missing file is not an error.
func (l *OverlayLoader) Load(ctx context.Context) error {
	if l.path == "" {
		return nil
	}

	o, err := ReadOverlay(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Info("overlay not found, using default configuration", slog.String("path", l.path))
			return nil
		}
		return fmt.Errorf("load overlay from %s: %w", l.path, err)
	}

	if err := l.holder.Apply(o); err != nil {
		return err
	}

	l.logger.Info("overlay applied", slog.String("path", l.path))
	return nil
}

// Start loads the overlay in the background and marks the holder ready when
// done. The returned channel receives the load error, if any, then closes.
func (l *OverlayLoader) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer l.holder.MarkReady()

		if err := l.Load(ctx); err != nil {
			l.logger.Error("failed to load overlay",
				slog.String("path", l.path),
				slog.String("error", err.Error()))
			done <- err
		}
	}()
	return done
}

// Watch reapplies the overlay whenever it is written or created. The parent
// directory is watched so an overlay that appears later is still picked up.
func (l *OverlayLoader) Watch(ctx context.Context) error {
	if l.path == "" {
		return errors.New("overlay path cannot be empty")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	target := filepath.Clean(l.path)
	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	l.logger.Info("watching overlay for changes", slog.String("path", l.path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				l.logger.Debug("overlay watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				l.logger.Info("overlay changed, reloading", slog.String("path", event.Name))
				if err := l.Load(ctx); err != nil {
					l.logger.Error("failed to reload overlay",
						slog.String("error", err.Error()),
						slog.String("path", l.path))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("overlay watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the overlay.
func (l *OverlayLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		return err
	}
	return nil
}
