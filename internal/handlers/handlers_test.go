package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converseai/converse/internal/conversation"
	"github.com/converseai/converse/internal/gateway"
	"github.com/converseai/converse/internal/handlers"
	"github.com/converseai/converse/internal/healthcheck"
	"github.com/converseai/converse/internal/inbound"
	"github.com/converseai/converse/internal/pipeline"
	"github.com/converseai/converse/internal/server"
)

type nullRetriever struct{}

func (nullRetriever) RetrieveContext(context.Context, string, []conversation.Message) []string {
	return nil
}

type staticGenerator struct{ reply string }

func (g staticGenerator) Reply(context.Context, string, []string, []conversation.Message) string {
	return g.reply
}

type okDispatcher struct{}

func (okDispatcher) Send(context.Context, gateway.OutboundMessage) bool { return true }

func newScheduler(store conversation.Store) *pipeline.Scheduler {
	runner := pipeline.NewRunner(nil, store, nil, nullRetriever{}, staticGenerator{reply: "ok"}, okDispatcher{}, 10)
	return pipeline.NewScheduler(nil, runner, pipeline.NewInflight(), time.Minute)
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) (status, message string) {
	t.Helper()
	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Status, body.Message
}

const webhookPayload = `{
	"channel": {"platform": "whatsapp", "number": "+55|82999939356"},
	"contact": {"name": "Maria", "phonenumber": "+55|82999464789"},
	"lastMessage": {"id": "msg-1", "type": "TEXT", "text": "quais os horários?"}
}`

func TestWebhookQueuesMessage(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemoryStore()
	scheduler := newScheduler(store)
	e := server.NewEcho(nil)
	handlers.NewWebhookHandler(nil, inbound.NewWTSNormalizer(nil), scheduler).Register(e)

	rec := doRequest(e, http.MethodPost, "/webhook", webhookPayload)
	require.Equal(t, http.StatusOK, rec.Code)
	status, _ := decodeStatus(t, rec)
	assert.Equal(t, "success", status)

	require.NoError(t, scheduler.Drain(context.Background()))
	_, err := store.Lookup(context.Background(), "5582999464789")
	assert.NoError(t, err)
}

func TestWebhookIgnoresUnactionablePayloads(t *testing.T) {
	t.Parallel()

	e := server.NewEcho(nil)
	handlers.NewWebhookHandler(nil, inbound.NewWTSNormalizer(nil), newScheduler(conversation.NewMemoryStore())).Register(e)

	tests := []struct {
		name    string
		payload string
	}{
		{"non-whatsapp platform", `{"channel":{"platform":"telegram"},"contact":{"phonenumber":"123"},"lastMessage":{"text":"oi"}}`},
		{"non-text type", `{"channel":{"platform":"whatsapp"},"contact":{"phonenumber":"123"},"lastMessage":{"type":"AUDIO"}}`},
		{"missing text", `{"channel":{"platform":"whatsapp"},"contact":{"phonenumber":"123"},"lastMessage":{"type":"TEXT"}}`},
		{"missing phone", `{"channel":{"platform":"whatsapp"},"contact":{},"lastMessage":{"type":"TEXT","text":"oi"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPost, "/webhook", tt.payload)
			// Always acknowledged; provider retries would only duplicate work.
			require.Equal(t, http.StatusOK, rec.Code)
			status, _ := decodeStatus(t, rec)
			assert.Equal(t, "ignored", status)
		})
	}
}

func TestWebhookAcknowledgesInFlightDuplicate(t *testing.T) {
	t.Parallel()

	guard := pipeline.NewInflight()
	require.True(t, guard.Admit("5582999464789"))

	runner := pipeline.NewRunner(nil, conversation.NewMemoryStore(), nil, nullRetriever{}, staticGenerator{reply: "ok"}, okDispatcher{}, 10)
	scheduler := pipeline.NewScheduler(nil, runner, guard, time.Minute)

	e := server.NewEcho(nil)
	handlers.NewWebhookHandler(nil, inbound.NewWTSNormalizer(nil), scheduler).Register(e)

	rec := doRequest(e, http.MethodPost, "/webhook", webhookPayload)
	require.Equal(t, http.StatusOK, rec.Code)
	status, message := decodeStatus(t, rec)
	assert.Equal(t, "ignored", status)
	assert.Contains(t, message, "already being processed")
}

func TestSubmitValidatesRequest(t *testing.T) {
	t.Parallel()

	e := server.NewEcho(nil)
	handlers.NewMessageHandler(nil, newScheduler(conversation.NewMemoryStore())).Register(e)

	rec := doRequest(e, http.MethodPost, "/message", `{"message":"oi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPost, "/message", `{"phone_number":"5582999464789"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitQueuesMessage(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemoryStore()
	scheduler := newScheduler(store)
	e := server.NewEcho(nil)
	handlers.NewMessageHandler(nil, scheduler).Register(e)

	rec := doRequest(e, http.MethodPost, "/message", `{"phone_number":"(82) 99946-4789","message":"quais os horários?","user_name":"Maria"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	status, _ := decodeStatus(t, rec)
	assert.Equal(t, "success", status)

	require.NoError(t, scheduler.Drain(context.Background()))
	conv, err := store.Lookup(context.Background(), "82999464789")
	require.NoError(t, err)
	assert.Equal(t, "Maria", conv.UserName)
}

func TestConversationLookup(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemoryStore()
	ctx := context.Background()
	conv, err := store.GetOrCreate(ctx, "5582999464789", "Maria")
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, conversation.Message{
		ConversationID: conv.ID,
		Sender:         "5582999464789",
		Content:        "oi",
		Direction:      conversation.DirectionIncoming,
	})
	require.NoError(t, err)

	e := server.NewEcho(nil)
	handlers.NewConversationHandler(nil, store, 50).Register(e)

	rec := doRequest(e, http.MethodGet, "/conversation/+55|82999464789", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Conversation conversation.Conversation `json:"conversation"`
		Messages     []conversation.Message    `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, conv.ID, body.Conversation.ID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "oi", body.Messages[0].Content)
}

func TestConversationLookupNotFound(t *testing.T) {
	t.Parallel()

	e := server.NewEcho(nil)
	handlers.NewConversationHandler(nil, conversation.NewMemoryStore(), 50).Register(e)

	rec := doRequest(e, http.MethodGet, "/conversation/5500000000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeKnowledge struct {
	added  []string
	source string
	wiped  bool
	err    error
}

func (f *fakeKnowledge) AddDocuments(_ context.Context, texts []string, source string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.added = append(f.added, texts...)
	f.source = source
	return len(texts), nil
}

func (f *fakeKnowledge) Wipe(context.Context) error {
	f.wiped = true
	return f.err
}

func TestKnowledgeAdd(t *testing.T) {
	t.Parallel()

	store := &fakeKnowledge{}
	e := server.NewEcho(nil)
	handlers.NewKnowledgeHandler(nil, store).Register(e)

	rec := doRequest(e, http.MethodPost, "/knowledge", `{"documents":["we open 9-18","we close on sundays"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
		Added  int    `json:"added"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 2, body.Added)
	assert.Equal(t, "manual", store.source)
}

func TestKnowledgeAddRejectsEmptyDocuments(t *testing.T) {
	t.Parallel()

	e := server.NewEcho(nil)
	handlers.NewKnowledgeHandler(nil, &fakeKnowledge{}).Register(e)

	rec := doRequest(e, http.MethodPost, "/knowledge", `{"documents":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeAddReportsStoreFailure(t *testing.T) {
	t.Parallel()

	e := server.NewEcho(nil)
	handlers.NewKnowledgeHandler(nil, &fakeKnowledge{err: errors.New("collection unavailable")}).Register(e)

	rec := doRequest(e, http.MethodPost, "/knowledge", `{"documents":["doc"]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestKnowledgeClear(t *testing.T) {
	t.Parallel()

	store := &fakeKnowledge{}
	e := server.NewEcho(nil)
	handlers.NewKnowledgeHandler(nil, store).Register(e)

	rec := doRequest(e, http.MethodDelete, "/knowledge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.wiped)
}

func TestHealthReportsComponents(t *testing.T) {
	t.Parallel()

	runner := healthcheck.NewRunner(nil, time.Second,
		healthcheck.CheckerFunc{ID: "persistence", Fn: func(context.Context) error { return nil }},
		healthcheck.CheckerFunc{ID: "vector_store", Fn: func(context.Context) error { return errors.New("unreachable") }},
	)
	e := server.NewEcho(nil)
	handlers.NewHealthHandler(nil, runner).Register(e)

	rec := doRequest(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, healthcheck.StatusOK, body.Components["persistence"])
	assert.Equal(t, healthcheck.StatusError, body.Components["vector_store"])
}

func TestHealthAllHealthy(t *testing.T) {
	t.Parallel()

	runner := healthcheck.NewRunner(nil, time.Second,
		healthcheck.CheckerFunc{ID: "persistence", Fn: func(context.Context) error { return nil }},
	)
	e := server.NewEcho(nil)
	handlers.NewHealthHandler(nil, runner).Register(e)

	rec := doRequest(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPingAndRoot(t *testing.T) {
	t.Parallel()

	e := server.NewEcho(nil)
	handlers.NewPingHandler(nil).Register(e)

	rec := doRequest(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status    string            `json:"status"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "online", body.Status)
	assert.Contains(t, body.Endpoints, "webhook")
}
