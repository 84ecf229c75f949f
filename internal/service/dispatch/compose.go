package dispatch

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

var (
	alarmTerms    = []string{"emergency", "urgent", "help", "accident", "injury", "pain", "chest pain", "unconscious", "bleeding"}
	dispatchTerms = []string{"emergency", "ambulance", "hospital", "location", "dispatch", "station", "response"}
)

// NeedsConfirmation reports whether a single-agent reply should ask the
// caller to confirm a dispatch: the caller sounded alarmed and the reply talks
// about sending help.
func NeedsConfirmation(userMessage, reply string) bool {
	return containsAny(strings.ToLower(userMessage), alarmTerms) && containsAny(strings.ToLower(reply), dispatchTerms)
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

var sectionTitles = map[facility.Category]string{
	facility.Medical: "🏥 MEDICAL SERVICES",
	facility.Fire:    "🚨 FIRE & EMERGENCY SERVICES",
	facility.Police:  "👮 POLICE SERVICES",
	facility.General: "📋 GENERAL ASSISTANCE",
}

func combineResponses(plan *Plan, sections []string) string {
	var b strings.Builder
	b.WriteString("🚨 **MULTI-SERVICE EMERGENCY RESPONSE** 🚨\n\n")

	types := make([]string, 0, len(plan.Legs))
	for _, leg := range plan.Legs {
		types = append(types, titleCase(string(leg.Category)))
	}
	fmt.Fprintf(&b, "**Emergency Type**: %s\n", strings.Join(types, ", "))
	fmt.Fprintf(&b, "**Urgency Level**: %s\n\n", strings.ToUpper(string(plan.Route.Urgency)))

	for i, leg := range plan.Legs {
		fmt.Fprintf(&b, "**%s:**\n%s\n\n", sectionTitles[leg.Category], strings.TrimSpace(sections[i]))
	}

	b.WriteString("---\n")
	b.WriteString("[OK] **All emergency services have been coordinated and dispatched.**\n")
	b.WriteString("📞 **Stay on the line for updates and follow instructions from emergency responders.**")
	return b.String()
}

// FallbackText is the canned answer of one agent plus the facilities found
// for its leg.
func FallbackText(leg Leg) string {
	text := leg.Agent.Fallback
	if text == "" {
		text = "I'm having trouble reaching the assistant right now. If this is an emergency, call 1122 immediately."
	}
	if len(leg.Facilities) == 0 {
		return text
	}
	return text + "\n\n" + FormatFacilityList(leg.Category, leg.Facilities)
}

var listHeaders = map[facility.Category]string{
	facility.Medical: "🏥 **NEARBY EMERGENCY HOSPITALS**",
	facility.Fire:    "🚒 **NEARBY FIRE STATIONS**",
	facility.Police:  "👮 **NEARBY POLICE STATIONS**",
}

// FormatFacilityList renders a numbered list with address, distance and the
// first phone number of each facility.
func FormatFacilityList(cat facility.Category, items []facility.Nearby) string {
	var b strings.Builder
	header := listHeaders[cat]
	if header == "" {
		header = "**NEARBY SERVICES**"
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	for i, item := range items {
		fmt.Fprintf(&b, "**%d. %s**\n", i+1, item.Name)
		if address := firstNonEmpty(item.Address, item.Area); address != "" {
			fmt.Fprintf(&b, "   📍 %s\n", address)
		}
		fmt.Fprintf(&b, "   📏 %.1f km away\n", item.DistanceKM)
		if phone := firstPhone(item.Facility); phone != "" {
			fmt.Fprintf(&b, "   📞 %s\n", phone)
		}
		if i < len(items)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func firstPhone(f facility.Facility) string {
	if len(f.ContactNumbers) > 0 {
		return f.ContactNumbers[0]
	}
	return f.EmergencyNumber
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
