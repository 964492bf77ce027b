package domain

import "time"

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a one-shot message shown to the user on the next render.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// Session is the state owned by one interactive browser session.
type Session struct {
	ID          string
	Transcript  *Transcript
	LastSaveDir string
	// APIKey is the key typed into the page. Stores must not persist it.
	APIKey    string
	Draft     string
	Notices   []Notice
	UpdatedAt time.Time
}

// NewSession starts a session whose transcript holds only the system turn.
func NewSession(id, systemPrompt, saveDir string) *Session {
	return &Session{
		ID:          id,
		Transcript:  NewTranscript(systemPrompt),
		LastSaveDir: saveDir,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Notify queues a notice for the next render.
func (s *Session) Notify(level NoticeLevel, text string) {
	s.Notices = append(s.Notices, Notice{Level: level, Text: text})
}

// TakeNotices returns the queued notices and clears the queue.
func (s *Session) TakeNotices() []Notice {
	out := s.Notices
	s.Notices = nil
	return out
}
