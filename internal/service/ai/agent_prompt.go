package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/agent"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

// PromptTemplate defines the structure for agent prompts
type PromptTemplate struct {
	SystemPrompt  string
	ResponseHints []string
	SafetyRules   []string
}

// Briefing carries the situational context injected into the system prompt.
type Briefing struct {
	Location   *chat.Location
	Urgency    category.Urgency
	Categories []facility.Category
	Facilities []facility.Nearby
}

// AgentPromptManager manages prompt templates for the responder agents
type AgentPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewAgentPromptManager creates a new prompt manager with default templates
func NewAgentPromptManager() *AgentPromptManager {
	manager := &AgentPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given agent
func (pm *AgentPromptManager) GetPromptTemplate(agentID string) (*PromptTemplate, error) {
	template, exists := pm.templates[agentID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for agent: %s", agentID)
	}
	return template, nil
}

// BuildSystemPrompt renders the agent profile, template rules and briefing.
func (pm *AgentPromptManager) BuildSystemPrompt(a *agent.Agent, briefing *Briefing) string {
	var b strings.Builder

	template, err := pm.GetPromptTemplate(a.ID)
	if err != nil {
		fmt.Fprintf(&b, "You are the %s (%s) for an emergency help line in Karachi, Pakistan.\n", a.Name, a.Title)
	} else {
		b.WriteString(template.SystemPrompt)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nRole:\n- Name: %s\n- Focus: %s\n- Tone: %s\n- Guidance: %s\n", a.Name, a.Title, a.Tone, a.PromptHint)
	if a.Hotline != "" {
		fmt.Fprintf(&b, "- Public hotline to mention when lives are at risk: %s\n", a.Hotline)
	}

	if template != nil {
		if len(template.ResponseHints) > 0 {
			b.WriteString("\nHow to respond:\n- ")
			b.WriteString(strings.Join(template.ResponseHints, "\n- "))
			b.WriteString("\n")
		}
		if len(template.SafetyRules) > 0 {
			b.WriteString("\nSafety rules:\n- ")
			b.WriteString(strings.Join(template.SafetyRules, "\n- "))
			b.WriteString("\n")
		}
	}

	if briefing != nil {
		b.WriteString("\n")
		b.WriteString(briefing.render())
	}
	return b.String()
}

func (br *Briefing) render() string {
	var b strings.Builder
	b.WriteString("Situation:\n")

	if br.Location != nil {
		address := br.Location.Address
		if address == "" {
			address = "coordinates only"
		}
		fmt.Fprintf(&b, "- Caller location: %s (%.4f, %.4f)\n", address, br.Location.Latitude, br.Location.Longitude)
	} else {
		b.WriteString("- Caller location: unknown. Ask the caller for their area in Karachi.\n")
	}
	if br.Urgency != "" {
		fmt.Fprintf(&b, "- Urgency: %s\n", strings.ToUpper(string(br.Urgency)))
	}
	if len(br.Categories) > 0 {
		labels := make([]string, 0, len(br.Categories))
		for _, c := range br.Categories {
			labels = append(labels, string(c))
		}
		fmt.Fprintf(&b, "- Services involved: %s\n", strings.Join(labels, ", "))
	}

	if len(br.Facilities) == 0 {
		b.WriteString("- No nearby facilities are on record for this location.\n")
		return b.String()
	}

	b.WriteString("- Nearest facilities (only recommend from this list):\n")
	for i, f := range br.Facilities {
		fmt.Fprintf(&b, "  %d. %s, %.1f km", i+1, f.Name, f.DistanceKM)
		if f.Area != "" {
			fmt.Fprintf(&b, ", %s", f.Area)
		}
		if f.EmergencyNumber != "" {
			fmt.Fprintf(&b, ", emergency %s", f.EmergencyNumber)
		}
		if len(f.ContactNumbers) > 0 {
			fmt.Fprintf(&b, ", tel %s", strings.Join(f.ContactNumbers, " / "))
		}
		if len(f.Services) > 0 {
			fmt.Fprintf(&b, ", services: %s", strings.Join(f.Services, ", "))
		} else if len(f.Specialties) > 0 {
			fmt.Fprintf(&b, ", specialties: %s", strings.Join(f.Specialties, ", "))
		}
		if f.ResponseTimeMinutes > 0 {
			fmt.Fprintf(&b, ", typical response %d min", f.ResponseTimeMinutes)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// loadDefaultTemplates loads the prompt templates for the built-in agents
func (pm *AgentPromptManager) loadDefaultTemplates() {
	shared := []string{
		"Never invent phone numbers, facility names or addresses. Use only the situation block.",
		"Do not diagnose. Describe warning signs and tell the caller when to call for help.",
		"If the caller describes immediate danger to life, tell them to call the hotline first.",
	}

	pm.templates["medical_agent"] = &PromptTemplate{
		SystemPrompt: "You are a medical emergency coordinator for an emergency help line in Karachi, Pakistan. You help callers reach ambulances and hospitals and keep patients stable until help arrives.",
		ResponseHints: []string{
			"Open with the single most important action.",
			"Ask about breathing, consciousness and bleeding when they are unknown.",
			"Recommend the nearest suitable hospital from the list with its distance.",
			"Keep answers under 150 words and use short numbered steps.",
		},
		SafetyRules: shared,
	}

	pm.templates["fire_agent"] = &PromptTemplate{
		SystemPrompt: "You are a fire and rescue coordinator for an emergency help line in Karachi, Pakistan. You help callers escape fires, gas leaks and collapses and reach the fire brigade.",
		ResponseHints: []string{
			"Lead with evacuation: get out, stay low under smoke, do not use lifts.",
			"Ask whether anyone is trapped and what is burning.",
			"Name the nearest fire station from the list and its typical response time.",
			"Keep answers under 150 words.",
		},
		SafetyRules: append(append([]string(nil), shared...), "Never advise re-entering a burning or collapsing building."),
	}

	pm.templates["police_agent"] = &PromptTemplate{
		SystemPrompt: "You are a police emergency coordinator for an emergency help line in Karachi, Pakistan. You help callers report crimes and accidents and stay safe until officers arrive.",
		ResponseHints: []string{
			"First confirm the caller is somewhere safe.",
			"Collect what happened, when, where and any description of people or vehicles.",
			"Name the nearest police station from the list.",
			"Keep answers under 150 words.",
		},
		SafetyRules: append(append([]string(nil), shared...), "Never encourage the caller to confront a suspect."),
	}

	pm.templates["general_agent"] = &PromptTemplate{
		SystemPrompt: "You are the front desk of an emergency help line in Karachi, Pakistan. Medical, fire and police coordinators sit behind you.",
		ResponseHints: []string{
			"Work out which service the caller needs and say so plainly.",
			"Ask one short clarifying question when the need is unclear.",
			"List the public hotlines when the caller sounds at risk: 1122 rescue, 115 ambulance, 16 fire, 15 police.",
		},
		SafetyRules: shared,
	}
}
