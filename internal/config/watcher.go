// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// =============================================================================
// CONFIG MANAGER
// =============================================================================

// Manager holds the active configuration snapshot and optionally watches the
// config file for changes, swapping in a freshly validated snapshot when the
// file is rewritten. Consumers read the snapshot through Current.
type Manager struct {
	mu      sync.RWMutex
	current *Config
	path    string
	logger  zerolog.Logger

	watcher  *fsnotify.Watcher
	debounce time.Duration

	pendingMu sync.Mutex
	pending   time.Time // last change time, zero when nothing pending

	cancel context.CancelFunc

	onChange []func(*Config)
}

// NewManager creates a Manager around an already loaded configuration.
// path is the file the configuration was loaded from; empty disables
// watching.
func NewManager(cfg *Config, path string, logger zerolog.Logger) *Manager {
	return &Manager{
		current:  cfg,
		path:     path,
		logger:   logger.With().Str("component", "config").Logger(),
		debounce: 250 * time.Millisecond,
	}
}

// Current returns the active configuration snapshot. The returned pointer
// must be treated as read-only; a reload replaces the snapshot rather than
// mutating it.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a callback invoked with the new snapshot after a
// successful reload. Callbacks run on the watcher goroutine and must not
// block. Register before calling Watch.
func (m *Manager) OnChange(fn func(*Config)) {
	m.onChange = append(m.onChange, fn)
}

// Reload re-reads the config file, validates it, and swaps the snapshot.
// On any error the previous snapshot stays active.
func (m *Manager) Reload() error {
	cfg, err := LoadFromPath(m.path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()

	for _, fn := range m.onChange {
		fn(cfg)
	}
	return nil
}

// Watch starts watching the config file for changes. Editors typically
// replace the file via rename, so the containing directory is watched and
// events are filtered by name. Watching stops when ctx is cancelled or
// Close is called.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	m.watcher = watcher
	m.cancel = cancel

	go m.processEvents(ctx)
	go m.processPending(ctx)

	return nil
}

// processEvents filters file system events down to changes of the config
// file and records them for debounced processing.
func (m *Manager) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			m.pendingMu.Lock()
			m.pending = time.Now()
			m.pendingMu.Unlock()

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn().Err(err).Msg("config watch error")
		}
	}
}

// processPending reloads the config once the debounce window after the last
// change has elapsed. A reload failure keeps the previous snapshot.
func (m *Manager) processPending(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			m.pendingMu.Lock()
			ready := !m.pending.IsZero() && time.Since(m.pending) >= m.debounce
			if ready {
				m.pending = time.Time{}
			}
			m.pendingMu.Unlock()

			if !ready {
				continue
			}

			if err := m.Reload(); err != nil {
				m.logger.Warn().Err(err).Str("path", m.path).
					Msg("config reload failed, keeping previous")
				continue
			}
			m.logger.Info().Str("path", m.path).Msg("config reloaded")
		}
	}
}

// Close stops watching and releases resources.
func (m *Manager) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
