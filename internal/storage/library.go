// Package storage persists saved page sessions ("the library"): one
// gzip-compressed JSON record per save, holding the page snapshot the engine
// produced plus enough metadata to list and reopen it.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/lingolens/lingolens-go/internal/protocol"
)

const fileExt = ".lingo.gz"

// ErrNotFound marks a missing library record.
var ErrNotFound = errors.New("saved page not found")

// Record is one saved page session.
type Record struct {
	ID       string             `json:"id"`
	URL      string             `json:"url"`
	Language string             `json:"language"`
	Title    string             `json:"title"`
	SavedAt  time.Time          `json:"savedAt"`
	State    protocol.PageState `json:"state"`
}

// Summary is the listing view of a record, without the snapshot body.
type Summary struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Language string    `json:"language"`
	Title    string    `json:"title"`
	SavedAt  time.Time `json:"savedAt"`
	Entries  int       `json:"entries"`
}

// Library is a directory of saved pages. Safe for concurrent use.
type Library struct {
	dir string
	mu  sync.Mutex
}

// NewLibrary opens (creating if needed) a library directory.
func NewLibrary(dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create library dir: %w", err)
	}
	return &Library{dir: dir}, nil
}

// Save writes a new record and returns it with ID and timestamp filled in.
func (l *Library) Save(url, language, title string, state protocol.PageState) (Record, error) {
	rec := Record{
		ID:       uuid.NewString(),
		URL:      url,
		Language: language,
		Title:    title,
		SavedAt:  time.Now().UTC(),
		State:    state,
	}

	data, err := sonic.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode saved page: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Create(l.path(rec.ID))
	if err != nil {
		return Record{}, fmt.Errorf("failed to create library file: %w", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		f.Close()
		return Record{}, fmt.Errorf("failed to write library file: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return Record{}, fmt.Errorf("failed to finish library file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Record{}, fmt.Errorf("failed to close library file: %w", err)
	}
	return rec, nil
}

// Load reads one record by ID.
func (l *Library) Load(id string) (Record, error) {
	f, err := os.Open(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to open library file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read library file: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read library file: %w", err)
	}
	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode saved page: %w", err)
	}
	return rec, nil
}

// Delete removes one record by ID.
func (l *Library) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := os.Remove(l.path(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// List returns summaries of every saved page, newest first. Unreadable files
// are skipped; one corrupt save must not hide the rest of the library.
func (l *Library) List() ([]Summary, error) {
	var mu sync.Mutex
	var out []Summary

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, fileExt) {
			return nil
		}
		id := strings.TrimSuffix(filepath.Base(path), fileExt)
		rec, err := l.Load(id)
		if err != nil {
			return nil
		}
		mu.Lock()
		out = append(out, Summary{
			ID:       rec.ID,
			URL:      rec.URL,
			Language: rec.Language,
			Title:    rec.Title,
			SavedAt:  rec.SavedAt,
			Entries:  len(rec.State.Translations),
		})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list library: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

// path guards against traversal through crafted IDs: only the basename of the
// ID is ever used.
func (l *Library) path(id string) string {
	return filepath.Join(l.dir, filepath.Base(id)+fileExt)
}
