package dispatch

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emergency-hub/backend/internal/model/agent"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/ai"
	chatsvc "github.com/zhouzirui/emergency-hub/backend/internal/service/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/location"
)

type fakeResponder struct {
	mu        sync.Mutex
	replies   map[string]string
	err       error
	streaming bool
	briefings map[string]*ai.Briefing
	histories [][]chat.Message
}

func (f *fakeResponder) GenerateResponse(_ context.Context, _ string, a *agent.Agent, briefing *ai.Briefing, history []chat.Message, _ string) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.briefings == nil {
		f.briefings = make(map[string]*ai.Briefing)
	}
	f.briefings[a.ID] = briefing
	f.histories = append(f.histories, history)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.replies[a.ID], nil), nil
}

func (f *fakeResponder) StreamResponse(_ context.Context, a *agent.Agent, _ *ai.Briefing, _ []chat.Message, _ string) (*schema.StreamReader[*schema.Message], error) {
	if f.err != nil {
		return nil, f.err
	}
	var chunks []*schema.Message
	for _, part := range strings.SplitAfter(f.replies[a.ID], " ") {
		chunks = append(chunks, schema.AssistantMessage(part, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func (f *fakeResponder) StreamingEnabled() bool { return f.streaming }

type fakeLocator struct {
	result location.Result
	calls  int
}

func (f *fakeLocator) Lookup(context.Context, string) location.Result {
	f.calls++
	return f.result
}

func testFacilities() facility.Store {
	return facility.NewMemoryStore([]facility.Facility{
		{ID: "medical-civil", Name: "Civil Hospital", Category: facility.Medical, Address: "Baba-e-Urdu Road, Saddar", Latitude: 24.8590, Longitude: 67.0100, ContactNumbers: []string{"021-99215740"}},
		{ID: "medical-far", Name: "Far Hospital", Category: facility.Medical, Latitude: 25.5, Longitude: 67.5},
		{ID: "fire-saddar", Name: "Saddar Fire Station", Category: facility.Fire, Area: "Saddar", Latitude: 24.8620, Longitude: 67.0050, EmergencyNumber: "16"},
		{ID: "police-preedy", Name: "Preedy Police Station", Category: facility.Police, Latitude: 24.8610, Longitude: 67.0200, EmergencyNumber: "15"},
	})
}

func newCoordinator(responder Responder, locator Locator) (*Coordinator, *chatsvc.Service) {
	sessions := chatsvc.NewService(chatsvc.DefaultConfig())
	agents := agent.NewMemoryStore(agent.Seed())
	return NewCoordinator(sessions, testFacilities(), agents, nil, locator, responder, Config{}), sessions
}

func TestHandleSingleServiceWithLocation(t *testing.T) {
	responder := &fakeResponder{replies: map[string]string{"medical_agent": "An ambulance is on the way to your location."}}
	c, sessions := newCoordinator(responder, nil)
	ctx := context.Background()

	reply, err := c.Handle(ctx, Request{Message: "Emergency! my father has chest pain, we are in Saddar"})
	require.NoError(t, err)

	require.True(t, reply.SessionCreated)
	require.Equal(t, chat.TypeAssistant, reply.Message.Type)
	require.Equal(t, "An ambulance is on the way to your location.", reply.Message.Content)
	require.True(t, reply.Message.NeedsConfirmation)
	require.NotNil(t, reply.Location)
	require.Equal(t, "Saddar, Karachi", reply.Location.Address)
	require.Len(t, reply.Facilities[facility.Medical], 1)
	require.Equal(t, "medical-civil", reply.Facilities[facility.Medical][0].ID)

	briefing := responder.briefings["medical_agent"]
	require.NotNil(t, briefing)
	require.Equal(t, reply.Facilities[facility.Medical], briefing.Facilities)

	transcript, err := sessions.LoadTranscript(ctx, reply.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	require.Equal(t, chat.TypeUser, transcript[0].Type)
	require.Equal(t, reply.Message.ID, transcript[1].ID)
}

func TestHandleKeepsSessionAndHistory(t *testing.T) {
	responder := &fakeResponder{replies: map[string]string{"general_agent": "How can I help?"}}
	c, _ := newCoordinator(responder, nil)
	ctx := context.Background()

	first, err := c.Handle(ctx, Request{Message: "hello"})
	require.NoError(t, err)
	require.False(t, first.Message.NeedsConfirmation)
	require.True(t, first.Route.General())

	second, err := c.Handle(ctx, Request{SessionID: first.SessionID, Message: "are you there"})
	require.NoError(t, err)
	require.False(t, second.SessionCreated)
	require.Equal(t, first.SessionID, second.SessionID)

	require.Len(t, responder.histories, 2)
	require.Empty(t, responder.histories[0])
	require.Len(t, responder.histories[1], 2)
}

func TestHandleUnknownSessionGetsNewID(t *testing.T) {
	c, _ := newCoordinator(nil, nil)
	reply, err := c.Handle(context.Background(), Request{SessionID: "made-up", Message: "hello"})
	require.NoError(t, err)
	require.True(t, reply.SessionCreated)
	require.NotEqual(t, "made-up", reply.SessionID)
}

func TestHandleMultiServiceCombinesSections(t *testing.T) {
	responder := &fakeResponder{replies: map[string]string{
		"medical_agent": "Keep the injured still.",
		"fire_agent":    "Get everyone out of the building.",
	}}
	c, _ := newCoordinator(responder, nil)

	reply, err := c.Handle(context.Background(), Request{Message: "fire with injuries in Saddar, urgent"})
	require.NoError(t, err)

	content := reply.Message.Content
	require.Equal(t, chat.TypeSystem, reply.Message.Type)
	require.True(t, reply.Message.NeedsConfirmation)
	require.True(t, strings.HasPrefix(content, "🚨 **MULTI-SERVICE EMERGENCY RESPONSE** 🚨"))
	require.Contains(t, content, "**Emergency Type**: Medical, Fire")
	require.Contains(t, content, "**Urgency Level**: CRITICAL")
	require.Contains(t, content, "**🏥 MEDICAL SERVICES:**\nKeep the injured still.")
	require.Contains(t, content, "**🚨 FIRE & EMERGENCY SERVICES:**\nGet everyone out of the building.")
	require.Less(t, strings.Index(content, "MEDICAL SERVICES"), strings.Index(content, "FIRE & EMERGENCY"))
	require.True(t, strings.HasSuffix(content, "follow instructions from emergency responders.**"))
	require.Len(t, reply.Facilities, 2)
}

func TestHandleFallsBackWhenAgentFails(t *testing.T) {
	responder := &fakeResponder{err: errors.New("upstream 503")}
	c, _ := newCoordinator(responder, nil)

	reply, err := c.Handle(context.Background(), Request{Message: "there is smoke and fire in saddar"})
	require.NoError(t, err)

	content := reply.Message.Content
	require.NotContains(t, content, "503")
	require.Contains(t, content, "call 16 or 1122")
	require.Contains(t, content, "**1. Saddar Fire Station**")
	require.Contains(t, content, "📞 16")
}

func TestHandleWithoutResponderOrLocation(t *testing.T) {
	c, _ := newCoordinator(nil, nil)

	reply, err := c.Handle(context.Background(), Request{Message: "my phone was stolen"})
	require.NoError(t, err)
	require.Nil(t, reply.Location)
	require.Empty(t, reply.Facilities)
	require.Contains(t, reply.Message.Content, "call 15")
}

func TestHandleUsesIPLocationOnlyWhenResolved(t *testing.T) {
	resolved := &fakeLocator{result: location.Result{Latitude: 24.86, Longitude: 67.0, Address: "Karachi", Source: location.SourceIP}}
	c, _ := newCoordinator(nil, resolved)
	reply, err := c.Handle(context.Background(), Request{Message: "need an ambulance", ClientIP: "203.0.113.9"})
	require.NoError(t, err)
	require.Equal(t, 1, resolved.calls)
	require.NotNil(t, reply.Location)
	require.NotEmpty(t, reply.Facilities[facility.Medical])

	fallback := &fakeLocator{result: location.Fallback}
	c, _ = newCoordinator(nil, fallback)
	reply, err = c.Handle(context.Background(), Request{Message: "need an ambulance", ClientIP: "127.0.0.1"})
	require.NoError(t, err)
	require.Nil(t, reply.Location)
}

func TestHandleCachesIPLocationOnSession(t *testing.T) {
	resolved := &fakeLocator{result: location.Result{Latitude: 24.86, Longitude: 67.0, Address: "Karachi", Source: location.SourceIP}}
	c, sessions := newCoordinator(nil, resolved)

	first, err := c.Handle(context.Background(), Request{Message: "need an ambulance", ClientIP: "203.0.113.9"})
	require.NoError(t, err)
	second, err := c.Handle(context.Background(), Request{SessionID: first.SessionID, Message: "is it coming?", ClientIP: "203.0.113.9"})
	require.NoError(t, err)

	require.Equal(t, 1, resolved.calls)
	require.NotNil(t, second.Location)
	require.Equal(t, location.SourceIP, second.Location.Source)

	session, err := sessions.GetSession(context.Background(), first.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session.Location)
}

func TestHandleAtTranscriptCapStoresNothing(t *testing.T) {
	sessions := chatsvc.NewService(chatsvc.Config{MaxMessages: 4})
	responder := &fakeResponder{replies: map[string]string{"general_agent": "How can I help?", "medical_agent": "Help is coming."}}
	c := NewCoordinator(sessions, testFacilities(), agent.NewMemoryStore(agent.Seed()), nil, nil, responder, Config{})
	ctx := context.Background()

	reply, err := c.Handle(ctx, Request{Message: "hello"})
	require.NoError(t, err)
	_, err = c.Confirm(ctx, reply.SessionID, false)
	require.NoError(t, err)

	_, err = c.Handle(ctx, Request{SessionID: reply.SessionID, Message: "I need an ambulance"})
	require.ErrorIs(t, err, chatsvc.ErrTranscriptFull)
	require.Len(t, responder.histories, 1, "model must not be called for a turn that cannot be stored")

	transcript, err := sessions.LoadTranscript(ctx, reply.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	require.Equal(t, chat.TypeSystem, transcript[len(transcript)-1].Type)
}

func TestHandleRejectsEmptyMessage(t *testing.T) {
	c, _ := newCoordinator(nil, nil)
	_, err := c.Handle(context.Background(), Request{Message: "   "})
	require.ErrorIs(t, err, chatsvc.ErrEmptyMessage)
}

func TestStreamSingleLeg(t *testing.T) {
	responder := &fakeResponder{streaming: true, replies: map[string]string{"police_agent": "Stay where you are safe."}}
	c, _ := newCoordinator(responder, nil)
	ctx := context.Background()

	plan, err := c.Plan(ctx, Request{Message: "robbery at my shop"})
	require.NoError(t, err)
	require.True(t, plan.Streamable())

	stream := c.Stream(ctx, plan)
	defer stream.Close()
	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		b.WriteString(chunk.Content)
	}
	require.Equal(t, "Stay where you are safe.", b.String())

	reply, err := c.Complete(ctx, plan, b.String())
	require.NoError(t, err)
	require.Equal(t, "Stay where you are safe.", reply.Message.Content)
}

func TestNeedsConfirmation(t *testing.T) {
	require.True(t, NeedsConfirmation("Help! accident on the road", "I can dispatch an ambulance"))
	require.False(t, NeedsConfirmation("where is the nearest hospital", "The nearest hospital is Civil"))
	require.False(t, NeedsConfirmation("urgent help", "Please stay calm."))
}
