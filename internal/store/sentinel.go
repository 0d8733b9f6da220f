package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"taxitrend/internal/domain"
)

// Sentinel records how many pruned files a summary was computed from.
type Sentinel struct {
	FileCount int `yaml:"file_count"`
}

// LoadSentinel reads the sentinel at path. A missing file yields a zero
// Sentinel and no error; an unreadable or malformed file yields a zero
// Sentinel and a *domain.CacheStateError.
func LoadSentinel(path string) (Sentinel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Sentinel{}, nil
		}
		return Sentinel{}, &domain.CacheStateError{Path: path, Err: err}
	}

	var s Sentinel
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Sentinel{}, &domain.CacheStateError{Path: path, Err: err}
	}
	if s.FileCount < 0 {
		return Sentinel{}, &domain.CacheStateError{Path: path, Err: fmt.Errorf("negative file_count %d", s.FileCount)}
	}
	return s, nil
}

// SaveSentinel overwrites the sentinel at path.
func SaveSentinel(path string, s Sentinel) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := tempPath(path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
