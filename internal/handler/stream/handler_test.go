package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emergency-hub/backend/internal/model/agent"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/emergency-hub/backend/internal/service/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/dispatch"
)

type chunkResponder struct {
	chunks []string
	err    error
}

func (c *chunkResponder) GenerateResponse(context.Context, string, *agent.Agent, *ai.Briefing, []chat.Message, string) (*schema.Message, error) {
	return schema.AssistantMessage(strings.Join(c.chunks, ""), nil), nil
}

func (c *chunkResponder) StreamResponse(context.Context, *agent.Agent, *ai.Briefing, []chat.Message, string) (*schema.StreamReader[*schema.Message], error) {
	if c.err != nil {
		return nil, c.err
	}
	msgs := make([]*schema.Message, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		msgs = append(msgs, schema.AssistantMessage(chunk, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (c *chunkResponder) StreamingEnabled() bool { return true }

func setupRouter(responder dispatch.Responder) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(chatservice.DefaultConfig())
	coordinator := dispatch.NewCoordinator(chatSvc, facility.NewMemoryStore(nil), agent.NewMemoryStore(agent.Seed()), nil, nil, responder, dispatch.Config{})
	r := chi.NewRouter()
	New(coordinator).RegisterRoutes(r)
	return r, chatSvc
}

func readEvents(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var events []StreamResponse
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestStreamRelaysDeltasAndStoresReply(t *testing.T) {
	r, chatSvc := setupRouter(&chunkResponder{chunks: []string{"Stay ", "low ", "and get out."}})

	req := httptest.NewRequest(http.MethodGet, "/stream/new?message="+url.QueryEscape("smoke in the kitchen"), nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	events := readEvents(t, resp.Body.String())
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Event)
	}
	want := "start,delta,delta,delta,message,end"
	if got := strings.Join(kinds, ","); got != want {
		t.Fatalf("expected events %s, got %s", want, got)
	}

	final := events[len(events)-2]
	if final.Content != "Stay low and get out." {
		t.Fatalf("unexpected final content %q", final.Content)
	}

	messages, err := chatSvc.LoadTranscript(context.Background(), final.SessionID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(messages) != 2 || messages[1].Content != "Stay low and get out." {
		t.Fatalf("unexpected transcript: %+v", messages)
	}
}

func TestStreamFallsBackWhenModelFails(t *testing.T) {
	r, _ := setupRouter(&chunkResponder{err: errors.New("boom")})

	req := httptest.NewRequest(http.MethodGet, "/stream/new?message=robbery", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	events := readEvents(t, resp.Body.String())
	final := events[len(events)-2]
	if final.Event != "message" || !strings.Contains(final.Content, "call 15") {
		t.Fatalf("expected police fallback, got %+v", final)
	}
	if strings.Contains(resp.Body.String(), "boom") {
		t.Fatal("raw error leaked to client")
	}
}

func TestStreamRequiresMessage(t *testing.T) {
	r, _ := setupRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/abc", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
