package dispatch

import (
	"context"
	"strings"

	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

const (
	declinedText   = "No problem! How else can I help you today?"
	noLocationText = "❌ Location not found. Please provide your location first."
	noFacilityText = "❌ No services found near your location. Please call 1122 for rescue assistance."
)

// Confirm answers the caller's yes/no to a dispatch prompt. A confirmation
// lists the nearest facilities for the services the last request needed.
func (c *Coordinator) Confirm(ctx context.Context, sessionID string, confirmed bool) (Reply, error) {
	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{SessionID: session.ID, Location: session.Location}
	msg := chat.Message{SessionID: session.ID, Type: chat.TypeSystem}

	switch {
	case !confirmed:
		msg.Content = declinedText
	case session.Location == nil:
		msg.Content = noLocationText
	default:
		history, err := c.sessions.LoadTranscript(ctx, session.ID)
		if err != nil {
			return Reply{}, err
		}
		reply.Route = c.classifier.Classify(ctx, nil, lastUserMessage(history))

		var sections []string
		for _, cat := range dispatchCategories(reply.Route.Categories) {
			nearby, err := c.nearest(cat, *session.Location)
			if err != nil {
				return Reply{}, err
			}
			if len(nearby) == 0 {
				continue
			}
			if reply.Facilities == nil {
				reply.Facilities = make(map[facility.Category][]facility.Nearby)
			}
			reply.Facilities[cat] = nearby
			sections = append(sections, FormatFacilityList(cat, nearby))
		}

		if len(sections) == 0 {
			msg.Content = noFacilityText
			break
		}
		msg.Content = strings.Join(sections, "\n\n") +
			"\n\n**Please reply with:**\n" +
			"• **Facility number** (1, 2, 3, etc.)\n" +
			"• **Your phone number** so responders can reach you\n" +
			"• **Any additional details** about the emergency"
		msg.NeedsConfirmation = true
	}

	saved, err := c.sessions.SaveMessage(ctx, msg)
	if err != nil {
		return Reply{}, err
	}
	reply.Message = saved
	return reply, nil
}

// dispatchCategories maps an unclassified request to medical help.
func dispatchCategories(categories []facility.Category) []facility.Category {
	out := make([]facility.Category, 0, len(categories))
	for _, c := range categories {
		if c != facility.General {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, facility.Medical)
	}
	return out
}

func lastUserMessage(history []chat.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Type == chat.TypeUser {
			return history[i].Content
		}
	}
	return ""
}
