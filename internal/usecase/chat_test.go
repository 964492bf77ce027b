package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"tech-advisor/internal/domain"
	"tech-advisor/internal/export"
	"tech-advisor/internal/integrations/openai"
	"tech-advisor/internal/repository"
)

type mockGateway struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	lastKey  string
	captured []domain.Turn
}

func (m *mockGateway) Complete(_ context.Context, apiKey string, turns []domain.Turn) (domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastKey = apiKey
	m.captured = turns
	if m.err != nil {
		return domain.Turn{}, m.err
	}
	return domain.AssistantTurn(m.reply), nil
}

type staticKey struct {
	key string
	err error
}

func (s staticKey) APIKey(context.Context) (string, error) { return s.key, s.err }

type mockKeyWriter struct {
	saved string
	err   error
}

func (m *mockKeyWriter) SaveAPIKey(key string) error {
	m.saved = key
	return m.err
}

type mockSaver struct {
	path       string
	err        error
	gotDoc     export.Document
	initialDir string
}

func (m *mockSaver) Save(_ context.Context, doc export.Document, initialDir string) (string, error) {
	m.gotDoc = doc
	m.initialDir = initialDir
	return m.path, m.err
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (f failingStore) Load(context.Context, string) (*domain.Session, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return nil, repository.ErrNotFound
}
func (f failingStore) Save(context.Context, *domain.Session) error { return f.saveErr }
func (f failingStore) Delete(context.Context, string) error        { return nil }

// tableFake is an in-memory DynamoDB table keyed by partition key.
type tableFake struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	puts  int
}

func newTableFake() *tableFake {
	return &tableFake{items: make(map[string]map[string]types.AttributeValue)}
}

func pkOf(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value
}

func (f *tableFake) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func (f *tableFake) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.items[pkOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *tableFake) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, pkOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *tableFake) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func newDynamoService(t *testing.T, gw Gateway, opts ...Option) (*ChatService, *tableFake) {
	t.Helper()
	table := newTableFake()
	store, err := repository.NewDynamoStore(table, "sessions", time.Hour)
	require.NoError(t, err)
	svc, err := NewChatService(gw, store, append([]Option{WithSystemPrompt("sys")}, opts...)...)
	require.NoError(t, err)
	return svc, table
}

// blockingGateway holds every call until release is closed.
type blockingGateway struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingGateway) Complete(ctx context.Context, _ string, _ []domain.Turn) (domain.Turn, error) {
	close(b.started)
	select {
	case <-b.release:
		return domain.AssistantTurn("late"), nil
	case <-ctx.Done():
		return domain.Turn{}, ctx.Err()
	}
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newService(t *testing.T, gw Gateway, opts ...Option) (*ChatService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore(time.Hour)
	opts = append([]Option{WithKeySources(staticKey{key: "sk-env"}), WithSystemPrompt("sys"), WithSaveDir("/home/me")}, opts...)
	svc, err := NewChatService(gw, store, opts...)
	require.NoError(t, err)

	origNow := now
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { now = origNow })
	return svc, store
}

func loadSession(t *testing.T, store *repository.MemoryStore, id string) *domain.Session {
	t.Helper()
	sess, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func requireCode(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, code, ucErr.Code)
	return ucErr
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	_, err := NewChatService(nil, repository.NewMemoryStore(0))
	require.Error(t, err)
	_, err = NewChatService(&mockGateway{}, nil)
	require.Error(t, err)

	svc, err := NewChatService(&mockGateway{}, repository.NewMemoryStore(0), WithSystemPrompt("  "))
	require.NoError(t, err)
	require.Equal(t, DefaultSystemPrompt(), svc.systemPrompt)
}

func TestDispatch_NewSessionGetsGeneratedID(t *testing.T) {
	orig := newUUID
	newUUID = func() string { return "generated-id" }
	t.Cleanup(func() { newUUID = orig })

	svc, store := newService(t, &mockGateway{reply: "hi"})
	res, err := svc.Dispatch(context.Background(), "", Event{Kind: EventClear})
	require.NoError(t, err)
	require.Equal(t, "generated-id", res.SessionID)
	require.Equal(t, 1, store.Len())
}

func TestSubmit_GrowsTranscriptByTwoPerTurn(t *testing.T) {
	gw := &mockGateway{reply: "# Answer\nbody"}
	svc, store := newService(t, gw)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "question"})
		require.NoError(t, err)
	}

	sess := loadSession(t, store, "s1")
	require.Equal(t, 1+2*3, sess.Transcript.Len())
	require.Equal(t, 3, gw.calls)
	require.Equal(t, "sk-env", gw.lastKey)

	require.Len(t, gw.captured, 6)
	require.Equal(t, domain.SystemTurn("sys"), gw.captured[0])
	require.Equal(t, domain.UserTurn("question"), gw.captured[5])
}

func TestSubmit_EmptyInputIsNoop(t *testing.T) {
	gw := &mockGateway{reply: "x"}
	svc, store := newService(t, gw)

	for _, text := range []string{"", "   ", "\n\t"} {
		res, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventSubmit, Text: text})
		require.NoError(t, err)
		require.Nil(t, res.Notice)
	}
	require.Zero(t, gw.calls)
	require.Equal(t, 1, loadSession(t, store, "s1").Transcript.Len())
}

func TestSubmit_GatewayFailureRollsBackAndKeepsDraft(t *testing.T) {
	gw := &mockGateway{reply: "first"}
	svc, store := newService(t, gw)
	ctx := context.Background()

	_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "ok"})
	require.NoError(t, err)
	before := loadSession(t, store, "s1").Transcript.Turns()

	gw.err = errors.New("connection reset")
	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "what about Vue?"})
	ucErr := requireCode(t, err, ErrorGateway)
	require.Equal(t, "openai_error", ucErr.Reason)

	sess := loadSession(t, store, "s1")
	require.Equal(t, before, sess.Transcript.Turns())
	require.Equal(t, "what about Vue?", sess.Draft)
	require.Len(t, sess.Notices, 1)
	require.Equal(t, domain.NoticeError, sess.Notices[0].Level)
	require.Contains(t, sess.Notices[0].Text, "connection reset")
	for _, turn := range sess.Transcript.Turns() {
		require.NotContains(t, turn.Content, "connection reset")
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	gw := &mockGateway{err: &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}}
	svc, _ := newService(t, gw)

	_, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventSubmit, Text: "q"})
	requireCode(t, err, ErrorRateLimited)
}

func TestSubmit_MissingAPIKey(t *testing.T) {
	gw := &mockGateway{reply: "x"}
	store := repository.NewMemoryStore(time.Hour)
	svc, err := NewChatService(gw, store, WithKeySources(staticKey{}, staticKey{err: errors.New("ssm down")}))
	require.NoError(t, err)

	_, err = svc.Dispatch(context.Background(), "s1", Event{Kind: EventSubmit, Text: "q"})
	ucErr := requireCode(t, err, ErrorMissingAPIKey)
	require.ErrorContains(t, ucErr, "ssm down")
	require.Zero(t, gw.calls)
	require.Equal(t, "q", loadSession(t, store, "s1").Draft)
}

func TestSetAPIKey_SessionKeyWins(t *testing.T) {
	gw := &mockGateway{reply: "x"}
	writer := &mockKeyWriter{}
	svc, store := newService(t, gw, WithKeyWriter(writer))
	ctx := context.Background()

	res, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSetAPIKey, Text: " sk-user "})
	require.NoError(t, err)
	require.Equal(t, domain.NoticeSuccess, res.Notice.Level)
	require.Empty(t, writer.saved)

	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q"})
	require.NoError(t, err)
	require.Equal(t, "sk-user", gw.lastKey)
	require.Equal(t, "sk-user", loadSession(t, store, "s1").APIKey)
}

func TestSetAPIKey_Persist(t *testing.T) {
	writer := &mockKeyWriter{}
	svc, _ := newService(t, &mockGateway{}, WithKeyWriter(writer))

	_, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventSetAPIKey, Text: "sk-user", Persist: true})
	require.NoError(t, err)
	require.Equal(t, "sk-user", writer.saved)

	writer.err = errors.New("read-only file system")
	_, err = svc.Dispatch(context.Background(), "s1", Event{Kind: EventSetAPIKey, Text: "sk-user", Persist: true})
	requireCode(t, err, ErrorFilesystem)
}

func TestSetAPIKey_Empty(t *testing.T) {
	svc, _ := newService(t, &mockGateway{})
	_, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventSetAPIKey, Text: "  "})
	requireCode(t, err, ErrorInvalidInput)
}

func TestClear_ResetsToSystemTurn(t *testing.T) {
	svc, store := newService(t, &mockGateway{reply: "a"})
	ctx := context.Background()
	_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q"})
	require.NoError(t, err)

	res, err := svc.Dispatch(ctx, "s1", Event{Kind: EventClear})
	require.NoError(t, err)
	require.NotNil(t, res.Notice)

	sess := loadSession(t, store, "s1")
	require.Equal(t, 1, sess.Transcript.Len())
	require.Equal(t, domain.RoleSystem, sess.Transcript.Turns()[0].Role)
}

func TestLoadHistory_ReplacesAndRoundTrips(t *testing.T) {
	svc, store := newService(t, &mockGateway{reply: "answer"})
	ctx := context.Background()
	_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q1"})
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q2"})
	require.NoError(t, err)

	res, err := svc.Dispatch(ctx, "s1", Event{Kind: EventExportHistory})
	require.NoError(t, err)
	require.NotNil(t, res.Document)
	require.Equal(t, "tech_chat_history_20260304_050607.json", res.Document.Filename)

	original := loadSession(t, store, "s1").Transcript.Turns()
	_, err = svc.Dispatch(ctx, "s2", Event{Kind: EventLoadHistory, Data: res.Document.Content})
	require.NoError(t, err)
	require.Equal(t, original, loadSession(t, store, "s2").Transcript.Turns())
}

func TestLoadHistory_MalformedLeavesTranscript(t *testing.T) {
	svc, store := newService(t, &mockGateway{reply: "a"})
	ctx := context.Background()
	_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q"})
	require.NoError(t, err)
	before := loadSession(t, store, "s1").Transcript.Turns()

	for _, data := range []string{`not json`, `{"role":"user"}`, `[{"role":"user"}]`, `[{"role":"system","content":"x"}]`} {
		_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventLoadHistory, Data: []byte(data)})
		requireCode(t, err, ErrorDeserialization)
		require.Equal(t, before, loadSession(t, store, "s1").Transcript.Turns())
	}
}

func TestExportAnswer_NoContent(t *testing.T) {
	svc, _ := newService(t, &mockGateway{})
	_, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventExportAnswer, Format: export.FormatMarkdown})
	requireCode(t, err, ErrorNoContent)
}

func TestExportAnswer_UsesLatestAssistantTurn(t *testing.T) {
	gw := &mockGateway{reply: "# Old"}
	svc, _ := newService(t, gw)
	ctx := context.Background()
	_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q1"})
	require.NoError(t, err)
	gw.reply = "# Django Views\nUse class-based views."
	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q2"})
	require.NoError(t, err)

	res, err := svc.Dispatch(ctx, "s1", Event{Kind: EventExportAnswer, Format: export.FormatText})
	require.NoError(t, err)
	require.Equal(t, "Django_Views_20260304_050607.txt", res.Document.Filename)
	require.Equal(t, "# Django Views\nUse class-based views.", string(res.Document.Content))

	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventExportAnswer, Format: export.Format("pdf")})
	requireCode(t, err, ErrorInvalidInput)
}

func TestSaveAnswer_UpdatesLastSaveDir(t *testing.T) {
	saver := &mockSaver{path: "/tmp/out/Vue_20260304_050607.md"}
	gw := &mockGateway{reply: "# Vue\ntext"}
	svc, store := newService(t, gw, WithSaver(saver))
	ctx := context.Background()
	_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q"})
	require.NoError(t, err)

	res, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSaveAnswer, Format: export.FormatMarkdown})
	require.NoError(t, err)
	require.Equal(t, saver.path, res.Path)
	require.Equal(t, "/home/me", saver.initialDir)
	require.Equal(t, "Vue_20260304_050607.md", saver.gotDoc.Filename)
	require.Equal(t, "/tmp/out", loadSession(t, store, "s1").LastSaveDir)
}

func TestSaveHistory_CancelIsInfoNotice(t *testing.T) {
	saver := &mockSaver{err: export.ErrCancelled}
	svc, store := newService(t, &mockGateway{}, WithSaver(saver))

	res, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventSaveHistory})
	require.NoError(t, err)
	require.Equal(t, domain.NoticeInfo, res.Notice.Level)

	sess := loadSession(t, store, "s1")
	require.Equal(t, "/home/me", sess.LastSaveDir)
	require.Equal(t, []domain.Notice{{Level: domain.NoticeInfo, Text: "Save cancelled."}}, sess.Notices)
}

func TestSave_Failures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{name: "dialog", err: errors.Join(export.ErrDialog, errors.New("no display")), reason: "save_dialog_failed"},
		{name: "write", err: errors.New("export: create /ro/x.json: permission denied"), reason: "write_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newService(t, &mockGateway{}, WithSaver(&mockSaver{err: tc.err}))
			_, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventSaveHistory})
			ucErr := requireCode(t, err, ErrorFilesystem)
			require.Equal(t, tc.reason, ucErr.Reason)
			require.Equal(t, "/home/me", loadSession(t, store, "s1").LastSaveDir)
		})
	}
}

func TestSave_WithoutSaver(t *testing.T) {
	svc, _ := newService(t, &mockGateway{})
	_, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventSaveHistory})
	requireCode(t, err, ErrorFilesystem)
}

func TestSave_WritesRealFileThroughSaver(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "history.json")
	saver, err := export.NewSaver(promptFunc(func(context.Context, export.SaveRequest) (string, error) {
		return target, nil
	}), export.WithTempDir(t.TempDir()))
	require.NoError(t, err)

	svc, store := newService(t, &mockGateway{reply: "é <b>"}, WithSaver(saver))
	ctx := context.Background()
	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q"})
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventSaveHistory})
	require.NoError(t, err)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), "é <b>"))
	require.Equal(t, dir, loadSession(t, store, "s1").LastSaveDir)
}

type promptFunc func(context.Context, export.SaveRequest) (string, error)

func (f promptFunc) PromptSaveLocation(ctx context.Context, req export.SaveRequest) (string, error) {
	return f(ctx, req)
}

func TestDispatch_UnknownEvent(t *testing.T) {
	svc, _ := newService(t, &mockGateway{})
	_, err := svc.Dispatch(context.Background(), "s1", Event{Kind: "dance"})
	requireCode(t, err, ErrorInvalidInput)
}

func TestDispatch_StoreErrors(t *testing.T) {
	svc, err := NewChatService(&mockGateway{}, failingStore{loadErr: errors.New("throttled")})
	require.NoError(t, err)
	_, err = svc.Dispatch(context.Background(), "s1", Event{Kind: EventClear})
	ucErr := requireCode(t, err, ErrorInternal)
	require.Equal(t, "session_load_error", ucErr.Reason)

	svc, err = NewChatService(&mockGateway{}, failingStore{saveErr: errors.New("throttled")})
	require.NoError(t, err)
	_, err = svc.Dispatch(context.Background(), "s1", Event{Kind: EventClear})
	ucErr = requireCode(t, err, ErrorInternal)
	require.Equal(t, "session_save_error", ucErr.Reason)
}

func TestView_DrainsNoticesAndDraft(t *testing.T) {
	gw := &mockGateway{err: errors.New("boom")}
	svc, _ := newService(t, gw)
	ctx := context.Background()
	_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "keep me"})
	require.Error(t, err)

	v, err := svc.View(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", v.SessionID)
	require.Equal(t, "keep me", v.Draft)
	require.Len(t, v.Notices, 1)
	require.Empty(t, v.Turns)
	require.False(t, v.NeedsAPIKey)

	v, err = svc.View(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, v.Draft)
	require.Empty(t, v.Notices)
}

func TestView_NeedsAPIKey(t *testing.T) {
	svc, err := NewChatService(&mockGateway{}, repository.NewMemoryStore(0))
	require.NoError(t, err)
	v, err := svc.View(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, v.NeedsAPIKey)

	_, err = svc.Dispatch(context.Background(), "s1", Event{Kind: EventSetAPIKey, Text: "sk"})
	require.NoError(t, err)
	v, err = svc.View(context.Background(), "s1")
	require.NoError(t, err)
	require.False(t, v.NeedsAPIKey)
}

func TestDispatch_SerializesPerSession(t *testing.T) {
	gw := &mockGateway{reply: "a"}
	svc, store := newService(t, gw)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q"})
		}()
	}
	wg.Wait()
	require.Equal(t, 1+2*20, loadSession(t, store, "s1").Transcript.Len())
}

func TestSubmit_KeepsTextAsTyped(t *testing.T) {
	gw := &mockGateway{reply: "a"}
	svc, store := newService(t, gw)

	code := "    def view(request):\n        return None\n"
	_, err := svc.Dispatch(context.Background(), "s1", Event{Kind: EventSubmit, Text: code})
	require.NoError(t, err)
	require.Equal(t, domain.UserTurn(code), loadSession(t, store, "s1").Transcript.Turns()[1])
}

func TestSetAPIKey_SurvivesStoreWithoutKey(t *testing.T) {
	gw := &mockGateway{reply: "a"}
	svc, table := newDynamoService(t, gw)
	ctx := context.Background()

	v, err := svc.View(ctx, "s1")
	require.NoError(t, err)
	require.True(t, v.NeedsAPIKey)

	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventSetAPIKey, Text: "sk-typed"})
	require.NoError(t, err)
	for _, item := range table.items {
		for _, attr := range item {
			if sv, ok := attr.(*types.AttributeValueMemberS); ok {
				require.NotContains(t, sv.Value, "sk-typed")
			}
		}
	}

	v, err = svc.View(ctx, "s1")
	require.NoError(t, err)
	require.False(t, v.NeedsAPIKey)
	require.Equal(t, []domain.Notice{{Level: domain.NoticeSuccess, Text: "API key set."}}, v.Notices)

	_, err = svc.Dispatch(ctx, "s1", Event{Kind: EventSubmit, Text: "q"})
	require.NoError(t, err)
	require.Equal(t, "sk-typed", gw.lastKey)

	v, err = svc.View(ctx, "other")
	require.NoError(t, err)
	require.True(t, v.NeedsAPIKey)
}

func TestSetAPIKey_ForgottenWhenSessionExpires(t *testing.T) {
	svc, table := newDynamoService(t, &mockGateway{})
	ctx := context.Background()

	_, err := svc.Dispatch(ctx, "s1", Event{Kind: EventSetAPIKey, Text: "sk-typed"})
	require.NoError(t, err)
	table.mu.Lock()
	table.items["SESSION#s1"]["ttl"] = &types.AttributeValueMemberN{Value: "1"}
	table.mu.Unlock()

	v, err := svc.View(ctx, "s1")
	require.NoError(t, err)
	require.True(t, v.NeedsAPIKey)
}

func TestDispatchInline_WritesOnceAndQueuesNothing(t *testing.T) {
	gw := &mockGateway{reply: "# Vue\nbody"}
	svc, table := newDynamoService(t, gw, WithKeySources(staticKey{key: "sk"}))
	ctx := context.Background()

	res, err := svc.DispatchInline(ctx, "s1", Event{Kind: EventSubmit, Text: "q"})
	require.NoError(t, err)
	require.Equal(t, 1, table.putCount())
	require.Equal(t, []domain.Turn{domain.UserTurn("q"), domain.AssistantTurn("# Vue\nbody")}, res.Turns)

	res, err = svc.DispatchInline(ctx, "s1", Event{Kind: EventClear})
	require.NoError(t, err)
	require.Equal(t, 2, table.putCount())
	require.Equal(t, "Chat history cleared.", res.Notice.Text)
	require.Empty(t, res.Turns)

	gw.err = errors.New("boom")
	_, err = svc.DispatchInline(ctx, "s1", Event{Kind: EventSubmit, Text: "keep me"})
	requireCode(t, err, ErrorGateway)
	require.Equal(t, 3, table.putCount())

	v, err := svc.View(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, v.Notices)
	require.Equal(t, "keep me", v.Draft)
}

func TestDispatch_OtherSessionsProceedDuringSlowCompletion(t *testing.T) {
	gw := &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newService(t, gw)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Dispatch(ctx, "slow", Event{Kind: EventSubmit, Text: "q"})
		done <- err
	}()
	<-gw.started

	for i := 0; i < 100; i++ {
		_, err := svc.View(ctx, fmt.Sprintf("other-%d", i))
		require.NoError(t, err)
	}

	close(gw.release)
	require.NoError(t, <-done)

	svc.locksMu.Lock()
	defer svc.locksMu.Unlock()
	require.Empty(t, svc.locks)
}

func TestErrorMessages(t *testing.T) {
	require.Equal(t, "There is no answer to export yet.", newError(ErrorNoContent, "x", nil).Message())
	require.Equal(t, "Could not save the file: disk full", newError(ErrorFilesystem, "x", errors.New("disk full")).Message())
	require.Equal(t, "Invalid input: empty_api_key", newError(ErrorInvalidInput, "empty_api_key", nil).Message())
	require.Contains(t, newError(ErrorInternal, "x", errors.New("secret detail")).Message(), "Something went wrong")
	require.Equal(t, "usecase: NO_CONTENT (x)", newError(ErrorNoContent, "x", nil).Error())
}

func TestDefaultSystemPrompt(t *testing.T) {
	p := DefaultSystemPrompt()
	require.Contains(t, p, "Django")
	require.Contains(t, p, "Markdown level-1 heading")
}
