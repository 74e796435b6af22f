// Package tenant maps a bot id to its on-disk resources and owns bot
// metadata. Each bot gets one directory under the registry root holding
// its schedule, metadata record, uploaded document, and retrieval index.
package tenant

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/docbot-ai/platform/internal/schedule"
	"github.com/docbot-ai/platform/pkg/logging"
)

// ErrAlreadyExists means the generated bot id collided with an existing
// directory. The suffix makes this astronomically unlikely, but it is
// checked, not assumed.
var ErrAlreadyExists = errors.New("tenant: bot already exists")

// ErrNotFound means no bot with the given id is registered.
var ErrNotFound = errors.New("tenant: no such bot")

// ErrInvalidName means the display name has no sluggable characters.
var ErrInvalidName = errors.New("tenant: name yields an empty slug")

// Metadata is the opaque per-bot record. The registry only cares that it
// round-trips; interpretation belongs to the session layer.
type Metadata struct {
	DisplayName  string `json:"display_name"`
	Greeting     string `json:"greeting"`
	Instructions string `json:"system_prompt"`
	APIKey       string `json:"api_key"`
}

// Paths locates a bot's on-disk resources.
type Paths struct {
	Dir          string
	SchedulePath string
	MetaPath     string
	DocumentDir  string
	IndexDir     string
}

// Registry manages bot directories under a single root.
type Registry struct {
	root   string
	logger *logging.Logger
}

// NewRegistry creates a registry rooted at dir, creating it if needed.
func NewRegistry(dir string, logger *logging.Logger) (*Registry, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tenant: create registry root: %w", err)
	}
	return &Registry{root: dir, logger: logger}, nil
}

var slugInvalidRE = regexp.MustCompile(`[^a-z0-9]+`)

// Create reserves resources for a new bot and returns its generated id:
// a slug of the display name plus an 8-hex suffix. The fresh directory
// gets an empty schedule and the provided metadata.
func (r *Registry) Create(name string, meta Metadata) (string, error) {
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	botID := slug + "-" + suffix

	paths := r.pathsFor(botID)
	if _, err := os.Stat(paths.Dir); err == nil {
		return "", ErrAlreadyExists
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("tenant: probe bot dir: %w", err)
	}

	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return "", fmt.Errorf("tenant: create bot dir: %w", err)
	}
	if err := schedule.WriteEmpty(paths.SchedulePath); err != nil {
		return "", err
	}
	meta.DisplayName = name
	if err := r.SaveMetadata(botID, meta); err != nil {
		return "", err
	}

	r.logger.Info("bot created", "bot_id", botID, "name", name)
	return botID, nil
}

// Resolve returns the bot's resource paths, or ErrNotFound.
func (r *Registry) Resolve(botID string) (Paths, error) {
	paths := r.pathsFor(botID)
	info, err := os.Stat(paths.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Paths{}, ErrNotFound
		}
		return Paths{}, fmt.Errorf("tenant: probe bot dir: %w", err)
	}
	if !info.IsDir() {
		return Paths{}, ErrNotFound
	}
	return paths, nil
}

// SaveMetadata writes the bot's metadata record atomically. Rotating a
// credential is a SaveMetadata with the new key.
func (r *Registry) SaveMetadata(botID string, meta Metadata) error {
	paths := r.pathsFor(botID)

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("tenant: encode metadata: %w", err)
	}
	tmp, err := os.CreateTemp(paths.Dir, ".meta-*")
	if err != nil {
		return fmt.Errorf("tenant: create temp metadata: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tenant: write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tenant: close metadata: %w", err)
	}
	if err := os.Rename(tmpName, paths.MetaPath); err != nil {
		return fmt.Errorf("tenant: publish metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads the bot's metadata record.
func (r *Registry) LoadMetadata(botID string) (Metadata, error) {
	paths := r.pathsFor(botID)
	data, err := os.ReadFile(paths.MetaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("tenant: read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("tenant: decode metadata: %w", err)
	}
	return meta, nil
}

// List returns the ids of every registered bot.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("tenant: read registry root: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

func (r *Registry) pathsFor(botID string) Paths {
	dir := filepath.Join(r.root, botID)
	return Paths{
		Dir:          dir,
		SchedulePath: filepath.Join(dir, "schedule.csv"),
		MetaPath:     filepath.Join(dir, "meta.json"),
		DocumentDir:  filepath.Join(dir, "documents"),
		IndexDir:     filepath.Join(dir, "index"),
	}
}

func slugify(name string) string {
	slug := slugInvalidRE.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
