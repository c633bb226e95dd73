// Package profiles loads named chunking profiles from YAML files and keeps
// them current while the files change.
package profiles

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/voicetyped/chunkscribe/internal/chunker"
)

// DefaultName is the profile used when a request names none.
const DefaultName = "default"

// Profile is a named set of chunking and backend overrides. Zero fields
// fall back to the service defaults, except OverlapSeconds where zero is a
// usable value and only an absent key falls back.
type Profile struct {
	Name                 string   `yaml:"name" json:"name"`
	Description          string   `yaml:"description" json:"description,omitempty"`
	Backend              string   `yaml:"backend" json:"backend,omitempty"`
	Model                string   `yaml:"model" json:"model,omitempty"`
	Language             string   `yaml:"language" json:"language,omitempty"`
	ChunkDurationSeconds float64  `yaml:"chunk_duration_seconds" json:"chunk_duration_seconds,omitempty"`
	OverlapSeconds       *float64 `yaml:"overlap_seconds" json:"overlap_seconds,omitempty"`
	MaxChunkSize         int64    `yaml:"max_chunk_size" json:"max_chunk_size,omitempty"`
}

// Chunking overlays the profile's set fields on base.
func (p Profile) Chunking(base chunker.Config) chunker.Config {
	if p.ChunkDurationSeconds > 0 {
		base.TargetDurationSeconds = p.ChunkDurationSeconds
	}
	if p.OverlapSeconds != nil {
		base.OverlapSeconds = *p.OverlapSeconds
	}
	if p.MaxChunkSize > 0 {
		base.MaxChunkBytes = p.MaxChunkSize
	}
	return base
}

// Validate rejects values no run could use.
func (p Profile) Validate() error {
	switch {
	case p.ChunkDurationSeconds < 0:
		return fmt.Errorf("profile %q: chunk_duration_seconds must not be negative", p.Name)
	case p.OverlapSeconds != nil && *p.OverlapSeconds < 0:
		return fmt.Errorf("profile %q: overlap_seconds must not be negative", p.Name)
	case p.MaxChunkSize < 0:
		return fmt.Errorf("profile %q: max_chunk_size must not be negative", p.Name)
	case p.ChunkDurationSeconds > 0 && p.OverlapSeconds != nil && *p.OverlapSeconds >= p.ChunkDurationSeconds:
		return fmt.Errorf("profile %q: overlap_seconds must be shorter than chunk_duration_seconds", p.Name)
	}
	return nil
}

// Loader loads and optionally hot-reloads profiles from YAML files.
type Loader struct {
	dir string

	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewLoader creates a loader for dir. The default profile is always present.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		profiles: map[string]Profile{DefaultName: {Name: DefaultName, Description: "service defaults"}},
	}
}

// LoadAll loads all .yaml and .yml files from the configured directory and
// replaces the current set. On error the current set is kept.
func (l *Loader) LoadAll() (map[string]Profile, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read profile dir %q: %w", l.dir, err)
	}

	result := map[string]Profile{DefaultName: {Name: DefaultName, Description: "service defaults"}}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		result[p.Name] = p
	}

	l.mu.Lock()
	l.profiles = result
	l.mu.Unlock()

	return maps.Clone(result), nil
}

// Get returns a profile by name. An empty name resolves to the default.
func (l *Loader) Get(name string) (Profile, bool) {
	if name == "" {
		name = DefaultName
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[name]
	return p, ok
}

// List returns all loaded profiles ordered by name.
func (l *Loader) List() []Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := slices.Sorted(maps.Keys(l.profiles))
	out := make([]Profile, 0, len(names))
	for _, n := range names {
		out = append(out, l.profiles[n])
	}
	return out
}

func loadFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse YAML: %w", err)
	}

	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = base[:len(base)-len(filepath.Ext(base))]
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// WatchAndReload watches the profile directory and reloads on change. It
// blocks until ctx is done.
func (l *Loader) WatchAndReload(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if _, err := l.LoadAll(); err != nil {
					slog.WarnContext(ctx, "profile reload failed", slog.String("error", err.Error()))
					continue
				}
				slog.InfoContext(ctx, "profiles reloaded", slog.String("trigger", event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
