package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrCancelled reports that the user dismissed the save dialog.
	ErrCancelled = errors.New("export: save cancelled")
	// ErrDialog wraps failures to show the save dialog at all.
	ErrDialog = errors.New("export: save dialog failed")
)

// FileFilter narrows the files offered by a save dialog.
type FileFilter struct {
	Name     string
	Patterns []string
}

// SaveRequest seeds a save dialog.
type SaveRequest struct {
	SuggestedName string
	InitialDir    string
	Filter        FileFilter
}

// Prompter asks the host for a save location. It blocks until the user picks a
// path or cancels; cancellation is reported as ErrCancelled.
type Prompter interface {
	PromptSaveLocation(ctx context.Context, req SaveRequest) (string, error)
}

// Saver writes documents to a location chosen through a Prompter. The content
// is staged in a temporary file first; the staging file is always removed.
type Saver struct {
	prompter Prompter
	tempDir  string
}

type SaverOption func(*Saver)

// WithTempDir stages files under dir instead of os.TempDir.
func WithTempDir(dir string) SaverOption {
	return func(s *Saver) {
		s.tempDir = dir
	}
}

func NewSaver(p Prompter, opts ...SaverOption) (*Saver, error) {
	if p == nil {
		return nil, errors.New("export: prompter must not be nil")
	}
	s := &Saver{prompter: p}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save writes doc to the path the user picks, starting the dialog in
// initialDir, and returns that path.
func (s *Saver) Save(ctx context.Context, doc Document, initialDir string) (string, error) {
	ext := doc.Extension()
	tmp, err := os.CreateTemp(s.tempDir, "tech-advisor-*"+ext)
	if err != nil {
		return "", fmt.Errorf("export: create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	_, err = tmp.Write(doc.Content)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("export: write staging file: %w", err)
	}

	if strings.TrimSpace(initialDir) == "" {
		initialDir = DefaultSaveDir()
	}
	path, err := s.prompter.PromptSaveLocation(ctx, SaveRequest{
		SuggestedName: doc.Filename,
		InitialDir:    initialDir,
		Filter:        doc.Filter,
	})
	if errors.Is(err, ErrCancelled) || (err == nil && strings.TrimSpace(path) == "") {
		return "", ErrCancelled
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDialog, err)
	}
	if filepath.Ext(path) == "" {
		path += ext
	}

	if err := copyFile(tmpPath, path); err != nil {
		return "", err
	}
	return path, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("export: open staging file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("export: write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", dst, err)
	}
	return nil
}

// DefaultSaveDir is the user's home directory, or the working directory when
// the home directory is unknown.
func DefaultSaveDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
