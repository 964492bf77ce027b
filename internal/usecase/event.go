package usecase

import (
	"tech-advisor/internal/domain"
	"tech-advisor/internal/export"
)

type EventKind string

const (
	EventSubmit      EventKind = "submit"
	EventClear       EventKind = "clear"
	EventLoadHistory EventKind = "load_history"
	// EventSaveHistory and EventSaveAnswer write through the save dialog.
	EventSaveHistory EventKind = "save_history"
	EventSaveAnswer  EventKind = "save_answer"
	// EventExportHistory and EventExportAnswer return the document instead.
	EventExportHistory EventKind = "export_history"
	EventExportAnswer  EventKind = "export_answer"
	EventSetAPIKey     EventKind = "set_api_key"
)

// Event is one user action.
type Event struct {
	Kind EventKind
	// Text is the question for submit and the key for set_api_key.
	Text   string
	Format export.Format
	// Data is the uploaded history file for load_history.
	Data []byte
	// Persist asks set_api_key to also write the key to the .env file.
	Persist bool
}

// Result is the outcome of a dispatched event.
type Result struct {
	SessionID string
	Notice    *domain.Notice
	Document  *export.Document
	// Path is where a save event wrote its document.
	Path string
	// Turns is the visible conversation after the event.
	Turns []domain.Turn
}
