package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"drive-in/internal/domain"
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".webm": true,
}

// FileSource watches a directory for recorded utterances. Audio files become
// audio captures and .txt files become typed captures. Consumed files are
// renamed with a .processed suffix.
type FileSource struct {
	dir       string
	interval  time.Duration
	logger    *slog.Logger
	processed map[string]bool
	mu        sync.Mutex
}

func NewFileSource(dir string, logger *slog.Logger) *FileSource {
	return &FileSource{
		dir:       dir,
		interval:  500 * time.Millisecond,
		logger:    logger,
		processed: make(map[string]bool),
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("creating input dir: %w", err)
	}
	return nil
}

func (f *FileSource) Stop() error {
	return nil
}

func (f *FileSource) NextCapture(ctx context.Context) (*domain.Capture, error) {
	if c, err := f.checkForNewFile(); err != nil || c != nil {
		return c, err
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			c, err := f.checkForNewFile()
			if err != nil {
				return nil, err
			}
			if c != nil {
				return c, nil
			}
		}
	}
}

func (f *FileSource) checkForNewFile() (*domain.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		isText := ext == ".txt"
		if !isText && !audioExtensions[ext] {
			continue
		}

		path := filepath.Join(f.dir, name)
		if f.processed[path] {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", path, err)
		}

		f.processed[path] = true
		if err := os.Rename(path, path+".processed"); err != nil {
			f.logger.Warn("marking file processed", "path", path, "error", err)
		}

		f.logger.Debug("picked up input file", "path", path)
		if isText {
			return domain.NewTextCapture(strings.TrimSpace(string(data))), nil
		}
		return domain.NewAudioCapture(data), nil
	}

	return nil, nil
}
