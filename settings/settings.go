package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel        = "llama3"
	DefaultPath         = "ollama"
	DefaultSystemPrompt = "You are a cybersecurity expert analyzing HTTP traffic. Focus on identifying " +
		"security vulnerabilities, suspicious patterns, and potential attack vectors. " +
		"Provide concise analysis with clear recommendations."
)

// ErrInvalidPath rejects executable paths that would resolve against the
// server's working directory.
var ErrInvalidPath = errors.New("executable path must be absolute or a bare command name")

// ValidPath reports whether p is absolute or a bare name looked up on PATH.
func ValidPath(p string) bool {
	return filepath.IsAbs(p) || !strings.ContainsAny(p, `/\`)
}

// Settings are the analyzer options shared by every session.
type Settings struct {
	Model        string `yaml:"model" json:"model"`
	Path         string `yaml:"path" json:"path"`
	SystemPrompt string `yaml:"systemPrompt" json:"systemPrompt"`
}

func Defaults() Settings {
	return Settings{
		Model:        DefaultModel,
		Path:         DefaultPath,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// withDefaults fills blank values so a request never carries an empty
// model, path or system prompt.
func (s Settings) withDefaults() Settings {
	d := Defaults()
	if strings.TrimSpace(s.Model) == "" {
		s.Model = d.Model
	}
	if strings.TrimSpace(s.Path) == "" {
		s.Path = d.Path
	}
	if strings.TrimSpace(s.SystemPrompt) == "" {
		s.SystemPrompt = d.SystemPrompt
	}
	return s
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Model        *string `json:"model"`
	Path         *string `json:"path"`
	SystemPrompt *string `json:"systemPrompt"`
}

// Store keeps the settings in memory and writes them back to a YAML file
// on every update.
type Store struct {
	file   string
	logger *zap.Logger

	mu      sync.RWMutex
	current Settings
}

// Load reads the settings file. A missing file yields the defaults; it is
// created on the first Update.
func Load(file string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{file: file, logger: logger, current: Defaults()}

	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("Settings file not found, using defaults", zap.String("file", file))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", file, err)
	}
	s.current = loaded.withDefaults()

	logger.Info("Settings loaded",
		zap.String("file", file),
		zap.String("model", s.current.Model),
		zap.String("path", s.current.Path))
	return s, nil
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// File is where the settings are persisted.
func (s *Store) File() string {
	return s.file
}

// Update applies p and persists the result. On a write failure the
// in-memory settings are left unchanged.
func (s *Store) Update(p Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if p.Model != nil {
		next.Model = strings.TrimSpace(*p.Model)
	}
	if p.Path != nil {
		next.Path = strings.TrimSpace(*p.Path)
		if next.Path != "" && !ValidPath(next.Path) {
			return s.current, fmt.Errorf("%w: %q", ErrInvalidPath, next.Path)
		}
	}
	if p.SystemPrompt != nil {
		next.SystemPrompt = *p.SystemPrompt
	}
	next = next.withDefaults()

	if err := s.save(next); err != nil {
		return s.current, err
	}
	s.current = next

	s.logger.Info("Settings saved",
		zap.String("file", s.file),
		zap.String("model", next.Model),
		zap.String("path", next.Path))
	return next, nil
}

func (s *Store) save(v Settings) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.file); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
