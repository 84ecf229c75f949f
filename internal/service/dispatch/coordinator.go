package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/agent"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/ai"
	chatsvc "github.com/zhouzirui/emergency-hub/backend/internal/service/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/location"
)

// Responder produces agent replies. *ai.Service satisfies it.
type Responder interface {
	GenerateResponse(ctx context.Context, sessionID string, a *agent.Agent, briefing *ai.Briefing, history []chat.Message, userMessage string) (*schema.Message, error)
	StreamResponse(ctx context.Context, a *agent.Agent, briefing *ai.Briefing, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error)
	StreamingEnabled() bool
}

// Classifier routes a message to service categories.
type Classifier interface {
	Classify(ctx context.Context, history []chat.Message, message string) category.Result
}

// Locator resolves a caller position from an IP address.
type Locator interface {
	Lookup(ctx context.Context, ip string) location.Result
}

// Config tunes facility lookups.
type Config struct {
	RadiusKM      float64
	FacilityLimit int
}

// Request is one inbound chat message.
type Request struct {
	SessionID string
	Message   string
	ClientIP  string
}

// Reply is the stored assistant answer plus what led to it.
type Reply struct {
	Message        chat.Message                           `json:"message"`
	SessionID      string                                 `json:"session_id"`
	SessionCreated bool                                   `json:"session_created"`
	Route          category.Result                        `json:"route"`
	Location       *chat.Location                         `json:"location,omitempty"`
	Facilities     map[facility.Category][]facility.Nearby `json:"facilities,omitempty"`
}

// Leg is the share of a request handled by one agent.
type Leg struct {
	Category   facility.Category
	Agent      agent.Agent
	Facilities []facility.Nearby
	Briefing   *ai.Briefing
}

// Plan holds everything resolved before any agent is asked.
type Plan struct {
	Session        chat.Session
	SessionCreated bool
	UserMessage    chat.Message
	History        []chat.Message
	Route          category.Result
	Origin         *chat.Location
	Legs           []Leg
}

// Streamable reports whether the plan can be answered as a live token stream.
func (p *Plan) Streamable() bool {
	return len(p.Legs) == 1
}

// Coordinator turns chat messages into routed, facility-aware replies.
type Coordinator struct {
	sessions   *chatsvc.Service
	facilities facility.Store
	agents     agent.Store
	classifier Classifier
	locator    Locator
	responder  Responder
	cfg        Config
}

// NewCoordinator wires the collaborators. responder and locator may be nil.
func NewCoordinator(sessions *chatsvc.Service, facilities facility.Store, agents agent.Store, classifier Classifier, locator Locator, responder Responder, cfg Config) *Coordinator {
	if cfg.RadiusKM <= 0 {
		cfg.RadiusKM = facility.DefaultRadiusKM
	}
	if cfg.FacilityLimit <= 0 {
		cfg.FacilityLimit = 5
	}
	if classifier == nil {
		classifier = keywordClassifier{router: category.NewRouter(nil)}
	}
	return &Coordinator{
		sessions:   sessions,
		facilities: facilities,
		agents:     agents,
		classifier: classifier,
		locator:    locator,
		responder:  responder,
		cfg:        cfg,
	}
}

type keywordClassifier struct {
	router *category.Router
}

func (k keywordClassifier) Classify(_ context.Context, _ []chat.Message, message string) category.Result {
	return k.router.Classify(message)
}

// Handle processes one message end to end and returns the stored reply.
func (c *Coordinator) Handle(ctx context.Context, req Request) (Reply, error) {
	plan, err := c.Plan(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	content := c.Answer(ctx, plan)
	return c.Complete(ctx, plan, content)
}

// Plan stores the user message and resolves route, origin and facilities.
// It fails with ErrTranscriptFull before anything is stored when the
// transcript cannot also hold the reply.
func (c *Coordinator) Plan(ctx context.Context, req Request) (*Plan, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, chatsvc.ErrEmptyMessage
	}

	session, created, err := c.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	history, err := c.sessions.LoadTranscript(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	userMessage, err := c.sessions.BeginTurn(ctx, chat.Message{
		SessionID: session.ID,
		Type:      chat.TypeUser,
		Content:   text,
	})
	if err != nil {
		return nil, err
	}

	if place, ok := location.Geocode(text); ok {
		updated, err := c.sessions.SetLocation(ctx, session.ID, toChatLocation(place))
		if err != nil {
			return nil, err
		}
		session = updated
		log.Printf("[dispatch] session=%s location set from message: %s", session.ID, place.Address)
	}

	origin := c.resolveOrigin(ctx, &session, req.ClientIP)
	plan := &Plan{
		Session:        session,
		SessionCreated: created,
		UserMessage:    userMessage,
		History:        history,
		Route:          c.classifier.Classify(ctx, history, text),
		Origin:         origin,
	}

	for _, cat := range plan.Route.Categories {
		leg, err := c.buildLeg(cat, plan)
		if err != nil {
			return nil, err
		}
		plan.Legs = append(plan.Legs, leg)
	}

	log.Printf("[dispatch] session=%s categories=%v urgency=%s legs=%d", session.ID, plan.Route.Categories, plan.Route.Urgency, len(plan.Legs))
	return plan, nil
}

// resolveOrigin prefers the session location. A resolved IP position is
// stored on the session so later turns skip the lookup.
func (c *Coordinator) resolveOrigin(ctx context.Context, session *chat.Session, clientIP string) *chat.Location {
	if session.Location != nil {
		loc := *session.Location
		return &loc
	}
	if c.locator == nil || clientIP == "" {
		return nil
	}
	result := c.locator.Lookup(ctx, clientIP)
	if result.Source != location.SourceIP {
		return nil
	}
	loc := toChatLocation(result)
	if updated, err := c.sessions.SetLocation(ctx, session.ID, loc); err != nil {
		log.Printf("[dispatch] session=%s failed to cache ip location: %v", session.ID, err)
	} else {
		*session = updated
	}
	return &loc
}

func (c *Coordinator) buildLeg(cat facility.Category, plan *Plan) (Leg, error) {
	a, ok := c.agents.ForCategory(cat)
	if !ok {
		return Leg{}, fmt.Errorf("no agent for category %s", cat)
	}

	leg := Leg{Category: cat, Agent: a}
	if cat != facility.General && plan.Origin != nil {
		nearby, err := c.nearest(cat, *plan.Origin)
		if err != nil {
			return Leg{}, err
		}
		leg.Facilities = nearby
	}

	leg.Briefing = &ai.Briefing{
		Location:   plan.Origin,
		Urgency:    plan.Route.Urgency,
		Categories: plan.Route.Categories,
		Facilities: leg.Facilities,
	}
	return leg, nil
}

func (c *Coordinator) nearest(cat facility.Category, origin chat.Location) ([]facility.Nearby, error) {
	nearby, err := c.facilities.FindNearby(cat, origin.Latitude, origin.Longitude, c.cfg.RadiusKM)
	if err != nil {
		return nil, err
	}
	if len(nearby) > c.cfg.FacilityLimit {
		nearby = nearby[:c.cfg.FacilityLimit]
	}
	return nearby, nil
}

// Answer asks every agent in the plan and composes the final text. Agent
// failures degrade to fallback text and never surface as errors.
func (c *Coordinator) Answer(ctx context.Context, plan *Plan) string {
	if len(plan.Legs) == 1 {
		return c.answerLeg(ctx, plan, plan.Legs[0])
	}

	sections := make([]string, 0, len(plan.Legs))
	for _, leg := range plan.Legs {
		sections = append(sections, c.answerLeg(ctx, plan, leg))
	}
	return combineResponses(plan, sections)
}

func (c *Coordinator) answerLeg(ctx context.Context, plan *Plan, leg Leg) string {
	if c.responder == nil {
		return FallbackText(leg)
	}
	resp, err := c.responder.GenerateResponse(ctx, plan.Session.ID, &leg.Agent, leg.Briefing, plan.History, plan.UserMessage.Content)
	if err != nil {
		log.Printf("[dispatch] agent %s failed for session=%s, using fallback: %v", leg.Agent.ID, plan.Session.ID, err)
		return FallbackText(leg)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return FallbackText(leg)
	}
	return resp.Content
}

// Stream returns the reply as a chunk stream. Single-agent plans stream live
// from the model when it supports streaming; everything else arrives as one
// chunk.
func (c *Coordinator) Stream(ctx context.Context, plan *Plan) *schema.StreamReader[*schema.Message] {
	if plan.Streamable() && c.responder != nil && c.responder.StreamingEnabled() {
		leg := plan.Legs[0]
		stream, err := c.responder.StreamResponse(ctx, &leg.Agent, leg.Briefing, plan.History, plan.UserMessage.Content)
		if err == nil {
			return stream
		}
		log.Printf("[dispatch] stream for session=%s failed to start, using fallback: %v", plan.Session.ID, err)
		return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(FallbackText(leg), nil)})
	}
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(c.Answer(ctx, plan), nil)})
}

// Fallback returns the canned answer for the plan.
func (c *Coordinator) Fallback(plan *Plan) string {
	if len(plan.Legs) == 1 {
		return FallbackText(plan.Legs[0])
	}
	sections := make([]string, 0, len(plan.Legs))
	for _, leg := range plan.Legs {
		sections = append(sections, FallbackText(leg))
	}
	return combineResponses(plan, sections)
}

// Complete stores the assistant reply for plan.
func (c *Coordinator) Complete(ctx context.Context, plan *Plan, content string) (Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		content = c.Fallback(plan)
	}

	msg := chat.Message{
		SessionID: plan.Session.ID,
		Type:      chat.TypeAssistant,
		Content:   content,
	}
	if len(plan.Legs) > 1 {
		msg.Type = chat.TypeSystem
		msg.NeedsConfirmation = true
	} else {
		msg.NeedsConfirmation = NeedsConfirmation(plan.UserMessage.Content, content)
	}

	saved, err := c.sessions.SaveMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, chatsvc.ErrTranscriptFull) {
			log.Printf("[dispatch] session=%s transcript full, reply not stored", plan.Session.ID)
		}
		return Reply{}, err
	}

	reply := Reply{
		Message:        saved,
		SessionID:      plan.Session.ID,
		SessionCreated: plan.SessionCreated,
		Route:          plan.Route,
		Location:       plan.Origin,
	}
	for _, leg := range plan.Legs {
		if len(leg.Facilities) == 0 {
			continue
		}
		if reply.Facilities == nil {
			reply.Facilities = make(map[facility.Category][]facility.Nearby)
		}
		reply.Facilities[leg.Category] = leg.Facilities
	}
	return reply, nil
}

func toChatLocation(r location.Result) chat.Location {
	return chat.Location{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Address:   r.Address,
		Source:    r.Source,
	}
}
