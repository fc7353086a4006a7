// Package store persists generated reports as JSON blobs on disk, one file
// per report id. The pipeline treats it as an opaque key-value collaborator.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tabloom/tabloom/internal/report"
	"github.com/tabloom/tabloom/internal/utils"
)

// ErrNotFound is returned by Get when no report has the given id.
var ErrNotFound = errors.New("report not found")

// FileStore keeps reports under a directory, one <id>.json each.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store directory not set")
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes the report atomically, overwriting any previous version.
func (s *FileStore) Put(rep *report.GeneratedReport) error {
	if rep.ID == "" {
		return errors.New("report id not set")
	}
	data, err := utils.PrettyJSON(rep)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(s.path(rep.ID), data)
}

// Get loads one report by id.
func (s *FileStore) Get(id string) (*report.GeneratedReport, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var rep report.GeneratedReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", id, err)
	}
	return &rep, nil
}

// List returns all stored reports, newest first. Unreadable entries are
// skipped rather than failing the listing.
func (s *FileStore) List() ([]*report.GeneratedReport, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	var out []*report.GeneratedReport
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rep, err := s.Get(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes one report, reporting whether it existed.
func (s *FileStore) Delete(id string) (bool, error) {
	err := os.Remove(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete report: %w", err)
	}
	return true, nil
}

func (s *FileStore) path(id string) string {
	// ids are generated internally, but never trust them as path components
	return filepath.Join(s.dir, filepath.Base(id)+".json")
}
