package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tech-advisor/internal/domain"
	"tech-advisor/internal/export"
	"tech-advisor/internal/repository"
)

// Gateway produces the next assistant turn for a full turn sequence.
type Gateway interface {
	Complete(ctx context.Context, apiKey string, turns []domain.Turn) (domain.Turn, error)
}

// KeySource supplies an API key when the session has none. An empty key with a
// nil error means the source has nothing configured.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// KeyWriter persists a user-supplied API key for later runs.
type KeyWriter interface {
	SaveAPIKey(key string) error
}

// FileSaver writes a document to a location chosen through a save dialog.
type FileSaver interface {
	Save(ctx context.Context, doc export.Document, initialDir string) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService applies user events to sessions. Events for one session are
// serialized.
type ChatService struct {
	gateway      Gateway
	store        repository.SessionStore
	saver        FileSaver
	keys         []KeySource
	keyWriter    KeyWriter
	systemPrompt string
	saveDir      string

	locksMu sync.Mutex
	locks   map[string]*sessionLock

	// Keys typed into the page are kept in process memory only. Stores that
	// never write the key lose it on the next load.
	keysMu      sync.Mutex
	sessionKeys map[string]string
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*ChatService)

// WithSaver enables the dialog-backed save events.
func WithSaver(s FileSaver) Option {
	return func(c *ChatService) {
		c.saver = s
	}
}

// WithKeySources sets the fallback API key sources, consulted in order.
func WithKeySources(sources ...KeySource) Option {
	return func(c *ChatService) {
		for _, src := range sources {
			if src != nil {
				c.keys = append(c.keys, src)
			}
		}
	}
}

func WithKeyWriter(w KeyWriter) Option {
	return func(c *ChatService) {
		c.keyWriter = w
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(c *ChatService) {
		if strings.TrimSpace(prompt) != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithSaveDir sets the initial save directory of new sessions.
func WithSaveDir(dir string) Option {
	return func(c *ChatService) {
		if strings.TrimSpace(dir) != "" {
			c.saveDir = dir
		}
	}
}

func NewChatService(gw Gateway, store repository.SessionStore, opts ...Option) (*ChatService, error) {
	if gw == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	c := &ChatService{
		gateway:      gw,
		store:        store,
		systemPrompt: DefaultSystemPrompt(),
		saveDir:      export.DefaultSaveDir(),
		locks:        make(map[string]*sessionLock),
		sessionKeys:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// View is the render state of a session. Notices and the draft are handed out
// once.
type View struct {
	SessionID   string
	Turns       []domain.Turn
	Notices     []domain.Notice
	Draft       string
	NeedsAPIKey bool
}

// View returns the render state of a session, starting a new session when id
// is empty or unknown.
func (c *ChatService) View(ctx context.Context, id string) (View, error) {
	id = c.sessionID(id)
	unlock := c.lock(id)
	defer unlock()

	sess, err := c.loadSession(ctx, id)
	if err != nil {
		return View{}, err
	}
	_, keyErr := c.resolveKey(ctx, sess)
	v := View{
		SessionID:   sess.ID,
		Turns:       sess.Transcript.Conversation(),
		Notices:     sess.TakeNotices(),
		Draft:       sess.Draft,
		NeedsAPIKey: keyErr != nil,
	}
	sess.Draft = ""
	if err := c.saveSession(ctx, sess); err != nil {
		return View{}, err
	}
	return v, nil
}

// Dispatch applies one event to a session, starting a new session when id is
// empty or unknown. The outcome is also queued on the session as a notice. A
// cancelled save dialog is reported as an info notice, not an error.
func (c *ChatService) Dispatch(ctx context.Context, id string, ev Event) (Result, error) {
	return c.dispatch(ctx, id, ev, true)
}

// DispatchInline applies one event like Dispatch but returns the outcome only
// to the caller. Nothing is queued and the session is written once, so callers
// without a later View can render the result directly.
func (c *ChatService) DispatchInline(ctx context.Context, id string, ev Event) (Result, error) {
	return c.dispatch(ctx, id, ev, false)
}

func (c *ChatService) dispatch(ctx context.Context, id string, ev Event, queue bool) (Result, error) {
	id = c.sessionID(id)
	unlock := c.lock(id)
	defer unlock()

	sess, err := c.loadSession(ctx, id)
	if err != nil {
		return Result{SessionID: id}, err
	}

	res, opErr := c.apply(ctx, sess, ev)
	res.SessionID = sess.ID

	var ucErr *Error
	switch {
	case opErr == nil:
	case errors.As(opErr, &ucErr) && ucErr.Code == ErrorDialogCancelled:
		res.Notice = &domain.Notice{Level: domain.NoticeInfo, Text: ucErr.Message()}
		opErr = nil
	case errors.As(opErr, &ucErr):
	default:
		ucErr = newError(ErrorInternal, "unexpected_error", opErr)
		opErr = ucErr
	}
	if queue {
		switch {
		case opErr != nil:
			sess.Notify(domain.NoticeError, ucErr.Message())
		case res.Notice != nil:
			sess.Notify(res.Notice.Level, res.Notice.Text)
		}
	}
	res.Turns = sess.Transcript.Conversation()

	if err := c.saveSession(ctx, sess); err != nil {
		return res, err
	}
	return res, opErr
}

func (c *ChatService) apply(ctx context.Context, sess *domain.Session, ev Event) (Result, error) {
	switch ev.Kind {
	case EventSubmit:
		return c.submit(ctx, sess, ev.Text)
	case EventClear:
		return c.clear(sess)
	case EventLoadHistory:
		return c.loadHistory(sess, ev.Data)
	case EventSaveHistory:
		return c.saveHistory(ctx, sess)
	case EventSaveAnswer:
		return c.saveAnswer(ctx, sess, ev.Format)
	case EventExportHistory:
		return c.exportHistory(sess)
	case EventExportAnswer:
		return c.exportAnswer(sess, ev.Format)
	case EventSetAPIKey:
		return c.setAPIKey(sess, ev.Text, ev.Persist)
	default:
		return Result{}, newError(ErrorInvalidInput, "unknown_event", fmt.Errorf("event %q", ev.Kind))
	}
}

func (c *ChatService) submit(ctx context.Context, sess *domain.Session, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}
	key, err := c.resolveKey(ctx, sess)
	if err != nil {
		sess.Draft = text
		return Result{}, err
	}

	tr := sess.Transcript
	before := tr.Len()
	tr.Append(domain.UserTurn(text))
	reply, err := c.gateway.Complete(ctx, key, tr.Turns())
	if err != nil {
		tr.Truncate(before)
		sess.Draft = text
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return Result{}, newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return Result{}, newError(ErrorGateway, "openai_error", err)
	}
	tr.Append(domain.AssistantTurn(reply.Content))
	sess.Draft = ""
	return Result{}, nil
}

func (c *ChatService) clear(sess *domain.Session) (Result, error) {
	sess.Transcript.Clear()
	sess.Draft = ""
	return Result{Notice: &domain.Notice{Level: domain.NoticeSuccess, Text: "Chat history cleared."}}, nil
}

func (c *ChatService) loadHistory(sess *domain.Session, data []byte) (Result, error) {
	turns, err := domain.DecodeTurns(data)
	if err != nil {
		return Result{}, newError(ErrorDeserialization, "invalid_history", err)
	}
	if err := sess.Transcript.Replace(turns); err != nil {
		return Result{}, newError(ErrorDeserialization, "invalid_history", err)
	}
	return Result{Notice: &domain.Notice{
		Level: domain.NoticeSuccess,
		Text:  fmt.Sprintf("Loaded chat history (%d messages).", len(turns)),
	}}, nil
}

func (c *ChatService) saveHistory(ctx context.Context, sess *domain.Session) (Result, error) {
	doc, err := export.HistoryDocument(sess.Transcript, now())
	if err != nil {
		return Result{}, newError(ErrorInternal, "encode_history", err)
	}
	return c.save(ctx, sess, doc)
}

func (c *ChatService) saveAnswer(ctx context.Context, sess *domain.Session, format export.Format) (Result, error) {
	doc, err := c.answerDocument(sess, format)
	if err != nil {
		return Result{}, err
	}
	return c.save(ctx, sess, doc)
}

func (c *ChatService) exportHistory(sess *domain.Session) (Result, error) {
	doc, err := export.HistoryDocument(sess.Transcript, now())
	if err != nil {
		return Result{}, newError(ErrorInternal, "encode_history", err)
	}
	return Result{Document: &doc}, nil
}

func (c *ChatService) exportAnswer(sess *domain.Session, format export.Format) (Result, error) {
	doc, err := c.answerDocument(sess, format)
	if err != nil {
		return Result{}, err
	}
	return Result{Document: &doc}, nil
}

func (c *ChatService) answerDocument(sess *domain.Session, format export.Format) (export.Document, error) {
	latest, ok := sess.Transcript.Latest(domain.RoleAssistant)
	if !ok {
		return export.Document{}, newError(ErrorNoContent, "no_assistant_turn", nil)
	}
	doc, err := export.AnswerDocument(latest.Content, format, now())
	if err != nil {
		return export.Document{}, newError(ErrorInvalidInput, "unknown_format", err)
	}
	return doc, nil
}

func (c *ChatService) save(ctx context.Context, sess *domain.Session, doc export.Document) (Result, error) {
	if c.saver == nil {
		return Result{}, newError(ErrorFilesystem, "save_unavailable", errors.New("no save location is configured"))
	}
	path, err := c.saver.Save(ctx, doc, sess.LastSaveDir)
	switch {
	case errors.Is(err, export.ErrCancelled):
		return Result{}, newError(ErrorDialogCancelled, "dialog_cancelled", err)
	case errors.Is(err, export.ErrDialog):
		return Result{}, newError(ErrorFilesystem, "save_dialog_failed", err)
	case err != nil:
		return Result{}, newError(ErrorFilesystem, "write_failed", err)
	}
	sess.LastSaveDir = filepath.Dir(path)
	return Result{
		Path:   path,
		Notice: &domain.Notice{Level: domain.NoticeSuccess, Text: "Saved: " + path},
	}, nil
}

func (c *ChatService) setAPIKey(sess *domain.Session, key string, persist bool) (Result, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Result{}, newError(ErrorInvalidInput, "empty_api_key", nil)
	}
	sess.APIKey = key
	c.keysMu.Lock()
	c.sessionKeys[sess.ID] = key
	c.keysMu.Unlock()
	if !persist {
		return Result{Notice: &domain.Notice{Level: domain.NoticeSuccess, Text: "API key set."}}, nil
	}
	if c.keyWriter == nil {
		return Result{}, newError(ErrorFilesystem, "env_write_unavailable", errors.New("no .env file is configured"))
	}
	if err := c.keyWriter.SaveAPIKey(key); err != nil {
		return Result{}, newError(ErrorFilesystem, "env_write_failed", err)
	}
	return Result{Notice: &domain.Notice{Level: domain.NoticeSuccess, Text: "API key set and saved to the .env file."}}, nil
}

// resolveKey returns the session key, else the key typed for this session in
// this process, else the first key a source yields.
func (c *ChatService) resolveKey(ctx context.Context, sess *domain.Session) (string, error) {
	if sess.APIKey != "" {
		return sess.APIKey, nil
	}
	c.keysMu.Lock()
	typed := c.sessionKeys[sess.ID]
	c.keysMu.Unlock()
	if typed != "" {
		return typed, nil
	}
	var errs []error
	for _, src := range c.keys {
		key, err := src.APIKey(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	return "", newError(ErrorMissingAPIKey, "no_api_key", errors.Join(errs...))
}

func (c *ChatService) loadSession(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := c.store.Load(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		c.keysMu.Lock()
		delete(c.sessionKeys, id)
		c.keysMu.Unlock()
		return domain.NewSession(id, c.systemPrompt, c.saveDir), nil
	}
	if err != nil {
		return nil, newError(ErrorInternal, "session_load_error", err)
	}
	return sess, nil
}

func (c *ChatService) saveSession(ctx context.Context, sess *domain.Session) error {
	if err := c.store.Save(ctx, sess); err != nil {
		return newError(ErrorInternal, "session_save_error", err)
	}
	return nil
}

func (c *ChatService) sessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return newUUID()
	}
	return id
}

// lock holds the mutex of one session. Entries are removed once no caller
// holds or waits on them.
func (c *ChatService) lock(id string) func() {
	c.locksMu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sessionLock{}
		c.locks[id] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.locksMu.Unlock()
	}
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}

var now = time.Now
