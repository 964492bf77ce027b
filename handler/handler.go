package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"tech-advisor/internal/domain"
	"tech-advisor/internal/export"
	"tech-advisor/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// ChatUseCase is the chat service surface the Lambda API needs. Outcomes are
// returned inline since no page load follows to drain queued notices.
type ChatUseCase interface {
	DispatchInline(ctx context.Context, id string, ev usecase.Event) (usecase.Result, error)
}

type Handler struct {
	uc     ChatUseCase
	logger *slog.Logger
}

type eventRequest struct {
	SessionID string          `json:"sessionId"`
	Event     string          `json:"event"`
	Text      string          `json:"text"`
	Format    string          `json:"format"`
	History   json.RawMessage `json:"history"`
}

type documentResponse struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

type eventResponse struct {
	SessionID string            `json:"sessionId"`
	Turns     []domain.Turn     `json:"turns"`
	Notice    *domain.Notice    `json:"notice,omitempty"`
	Document  *documentResponse `json:"document,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Save events need a desktop dialog and the key form needs a browser session,
// so neither is reachable through this API.
var lambdaEvents = map[string]usecase.EventKind{
	string(usecase.EventSubmit):        usecase.EventSubmit,
	string(usecase.EventClear):         usecase.EventClear,
	string(usecase.EventLoadHistory):   usecase.EventLoadHistory,
	string(usecase.EventExportHistory): usecase.EventExportHistory,
	string(usecase.EventExportAnswer):  usecase.EventExportAnswer,
}

func NewHandler(uc ChatUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, logger: slog.Default()}, nil
}

// WithLogger replaces the default logger.
func (h *Handler) WithLogger(l *slog.Logger) *Handler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := h.logger.With("correlation_id", corrID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return respondError(corrID, http.StatusMethodNotAllowed, usecase.ErrorInvalidInput, "method_not_allowed", ""), nil
	}

	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return respondError(corrID, http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid_body", ""), nil
		}
		body = string(decoded)
	}

	var in eventRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		log.Warn("invalid request body", "err", err)
		return respondError(corrID, http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid_body", ""), nil
	}

	ev, reason := toEvent(in)
	if reason != "" {
		return respondError(corrID, http.StatusBadRequest, usecase.ErrorInvalidInput, reason, in.SessionID), nil
	}

	res, err := h.uc.DispatchInline(ctx, in.SessionID, ev)
	if res.SessionID == "" {
		res.SessionID = in.SessionID
	}

	if err != nil {
		var ucErr *usecase.Error
		if !errors.As(err, &ucErr) {
			ucErr = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
		}
		status := statusFor(ucErr.Code)
		if status >= http.StatusInternalServerError {
			log.Error("event failed", "session", res.SessionID, "event", ev.Kind, "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
		} else {
			log.Warn("event rejected", "session", res.SessionID, "event", ev.Kind, "code", ucErr.Code, "reason", ucErr.Reason)
		}
		return respondError(corrID, status, ucErr.Code, ucErr.Reason, res.SessionID), nil
	}
	out := eventResponse{
		SessionID: res.SessionID,
		Turns:     res.Turns,
		Notice:    res.Notice,
	}
	if out.Turns == nil {
		out.Turns = []domain.Turn{}
	}
	if res.Document != nil {
		out.Document = &documentResponse{
			Filename: res.Document.Filename,
			MimeType: res.Document.MimeType,
			Content:  string(res.Document.Content),
		}
	}
	log.Info("event handled", "session", res.SessionID, "event", ev.Kind)
	return respond(corrID, http.StatusOK, out), nil
}

func toEvent(in eventRequest) (usecase.Event, string) {
	kind, ok := lambdaEvents[strings.TrimSpace(in.Event)]
	if !ok {
		return usecase.Event{}, "unknown_event"
	}
	ev := usecase.Event{Kind: kind, Text: in.Text}
	switch kind {
	case usecase.EventLoadHistory:
		if len(in.History) == 0 {
			return usecase.Event{}, "missing_history"
		}
		ev.Data = []byte(in.History)
	case usecase.EventExportAnswer:
		f, err := export.ParseFormat(in.Format)
		if err != nil {
			return usecase.Event{}, "unknown_format"
		}
		ev.Format = f
	}
	return ev, ""
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorDeserialization:
		return http.StatusBadRequest
	case usecase.ErrorNoContent:
		return http.StatusConflict
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorGateway:
		return http.StatusBadGateway
	case usecase.ErrorMissingAPIKey:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func respondError(corrID string, status int, code usecase.ErrorCode, reason, sessionID string) events.APIGatewayProxyResponse {
	return respond(corrID, status, errorResponse{Error: string(code), Reason: reason, SessionID: sessionID})
}

func respond(corrID string, status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR","reason":"encode_response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}
