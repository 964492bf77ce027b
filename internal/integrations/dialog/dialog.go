// Package dialog provides export.Prompter implementations: a native save
// dialog and a non-interactive directory target for headless hosts.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ncruces/zenity"

	"tech-advisor/internal/export"
)

// selectFileSave matches zenity.SelectFileSave so tests can replace it.
type selectFileSave func(opts ...zenity.Option) (string, error)

// Native shows the operating system's save dialog. The call blocks until the
// dialog is dismissed, and the dialog is gone when it returns.
type Native struct {
	title      string
	selectSave selectFileSave
}

func NewNative(title string) *Native {
	if strings.TrimSpace(title) == "" {
		title = "Save file"
	}
	return &Native{title: title, selectSave: zenity.SelectFileSave}
}

func (n *Native) PromptSaveLocation(ctx context.Context, req export.SaveRequest) (string, error) {
	opts := []zenity.Option{
		zenity.Context(ctx),
		zenity.Title(n.title),
		zenity.Filename(filepath.Join(req.InitialDir, req.SuggestedName)),
		zenity.ConfirmOverwrite(),
	}
	filters := zenity.FileFilters{{Name: "All files", Patterns: []string{"*"}}}
	if len(req.Filter.Patterns) > 0 {
		filters = append(zenity.FileFilters{{Name: req.Filter.Name, Patterns: req.Filter.Patterns}}, filters...)
	}
	opts = append(opts, filters)

	path, err := n.selectSave(opts...)
	if errors.Is(err, zenity.ErrCanceled) {
		return "", export.ErrCancelled
	}
	if err != nil {
		return "", fmt.Errorf("dialog: select save location: %w", err)
	}
	return path, nil
}

// Directory never asks: it saves under the requested initial directory, or
// under its own root when the request has none.
type Directory struct {
	root string
}

func NewDirectory(root string) (*Directory, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("dialog: directory must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("dialog: create %s: %w", root, err)
	}
	return &Directory{root: root}, nil
}

func (d *Directory) PromptSaveLocation(_ context.Context, req export.SaveRequest) (string, error) {
	dir := d.root
	if info, err := os.Stat(req.InitialDir); err == nil && info.IsDir() {
		dir = req.InitialDir
	}
	return filepath.Join(dir, filepath.Base(req.SuggestedName)), nil
}
