// Package skill discovers skill documents on disk. A skill is a directory
// containing SKILL.md; the document text is handed to the matching engine
// as model guidance.
package skill

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DocFile is the file that marks a directory as a skill.
const DocFile = "SKILL.md"

// ErrUnknownSkill is returned when a skill name is not registered.
var ErrUnknownSkill = errors.New("unknown skill")

// Skill describes one discovered skill.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
}

type frontMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type cachedDoc struct {
	text    string
	modTime time.Time
}

// Registry holds the skills found under a root directory.
type Registry struct {
	root   string
	logger *slog.Logger

	mu     sync.RWMutex
	skills map[string]Skill
	cache  map[string]cachedDoc
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry scans root for skills. A missing root yields an empty registry.
func NewRegistry(root string, opts ...Option) (*Registry, error) {
	r := &Registry{
		root:   root,
		logger: slog.Default(),
		skills: make(map[string]Skill),
		cache:  make(map[string]cachedDoc),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Root returns the directory the registry scans.
func (r *Registry) Root() string {
	return r.root
}

// Reload rescans the root directory and drops cached documents.
func (r *Registry) Reload() error {
	skills := make(map[string]Skill)

	info, err := os.Stat(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("Skill root does not exist", "root", r.root)
	} else if err != nil {
		return fmt.Errorf("stat skill root: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("skill root %s is not a directory", r.root)
	} else {
		matches, err := doublestar.Glob(os.DirFS(r.root), "**/"+DocFile)
		if err != nil {
			return fmt.Errorf("scan skills: %w", err)
		}
		sort.Strings(matches)

		for _, rel := range matches {
			dir := filepath.Dir(filepath.FromSlash(rel))
			if dir == "." {
				continue
			}
			path := filepath.Join(r.root, filepath.FromSlash(rel))
			s, err := loadSkill(path)
			if err != nil {
				r.logger.Warn("Failed to register skill", "path", path, "error", err)
				continue
			}
			if s.Name == "" {
				s.Name = filepath.Base(dir)
			}
			if _, dup := skills[s.Name]; dup {
				r.logger.Warn("Duplicate skill name, keeping first", "name", s.Name, "path", path)
				continue
			}
			skills[s.Name] = s
		}
	}

	r.mu.Lock()
	r.skills = skills
	r.cache = make(map[string]cachedDoc)
	r.mu.Unlock()

	r.logger.Debug("Skills loaded", "root", r.root, "count", len(skills))
	return nil
}

// loadSkill reads the optional YAML front matter of a skill document.
func loadSkill(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}
	s := Skill{Path: path}

	fm, ok := splitFrontMatter(data)
	if !ok {
		return s, nil
	}
	var meta frontMatter
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return Skill{}, fmt.Errorf("parse front matter: %w", err)
	}
	s.Name = strings.TrimSpace(meta.Name)
	s.Description = strings.TrimSpace(meta.Description)
	return s, nil
}

func splitFrontMatter(data []byte) ([]byte, bool) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !bytes.HasPrefix(data, []byte("---")) {
		return nil, false
	}
	rest := data[3:]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(string(rest[:nl])) != "" {
		return nil, false
	}
	rest = rest[nl+1:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, false
	}
	return rest[:end], true
}

// List returns the registered skill names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Skills returns the registered skills sorted by name.
func (r *Registry) Skills() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ensure returns ErrUnknownSkill when name is not registered.
func (r *Registry) Ensure(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.skills[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSkill, name)
	}
	return nil
}

// Doc returns the text of a skill document. The text is re-read only when
// the file modification time changes.
func (r *Registry) Doc(name string) (string, error) {
	r.mu.RLock()
	s, ok := r.skills[name]
	cached, hit := r.cache[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSkill, name)
	}

	info, err := os.Stat(s.Path)
	if err != nil {
		return "", fmt.Errorf("stat skill %s: %w", name, err)
	}
	if hit && cached.modTime.Equal(info.ModTime()) {
		return cached.text, nil
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read skill %s: %w", name, err)
	}

	r.mu.Lock()
	r.cache[name] = cachedDoc{text: string(data), modTime: info.ModTime()}
	r.mu.Unlock()
	return string(data), nil
}

// Watch reloads the registry whenever a file under the root changes. It
// returns once the watcher is running; watching stops when ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := os.MkdirAll(r.root, 0755); err != nil {
		fsw.Close()
		return fmt.Errorf("create skill root: %w", err)
	}
	if err := r.addWatches(fsw); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := fsw.Add(event.Name); err != nil {
							r.logger.Warn("Failed to watch new skill directory", "path", event.Name, "error", err)
						}
					}
				}
				r.logger.Debug("Skill change detected", "path", event.Name, "op", event.Op.String())
				if err := r.Reload(); err != nil {
					r.logger.Error("Skill reload failed", "error", err)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				r.logger.Error("Skill watcher error", "error", err)
			}
		}
	}()

	r.logger.Info("Skill watcher started", "root", r.root)
	return nil
}

func (r *Registry) addWatches(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != r.root {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
