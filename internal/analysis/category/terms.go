package category

import "github.com/zhouzirui/emergency-hub/backend/internal/model/facility"

// 同一个词可以出现在多个类别中，例如 "accident" 同时触发医疗与警务。
var defaultBuckets = map[facility.Category][]string{
	facility.Medical: {
		"hospital", "doctor", "ambulance", "medical", "health", "sick", "injured", "injury", "injuries",
		"wound", "bleeding", "pain", "heart", "chest", "breathing", "unconscious", "medicine", "treatment",
		"clinic", "nurse", "patient", "illness", "disease", "casualties", "victims", "hurt", "wounded",
		"accident", "overdose", "stroke", "fainted", "pregnant", "labor pain", "heart attack",
		"asthma attack", "panic attack", "anxiety attack",
	},
	facility.Fire: {
		"fire", "burning", "smoke", "flame", "blaze", "fire brigade", "rescue", "building collapse",
		"gas leak", "chemical", "explosion", "utility", "power outage", "water leak", "warehouse fire",
		"trapped", "short circuit", "cylinder blast",
	},
	facility.Police: {
		"police", "crime", "robbery", "theft", "burglary", "mugging", "violence", "fight", "attack",
		"traffic accident", "car crash", "hit and run", "domestic violence", "harassment", "threat",
		"cyber crime", "fraud", "scam", "kidnapping", "missing", "stolen", "criminal", "law enforcement",
		"security", "investigation", "accident", "shooting", "snatched",
	},
}

// 医疗短语里的 "attack" 不算警情。
var defaultExclusions = map[facility.Category][]string{
	facility.Police: {"heart attack", "asthma attack", "panic attack", "anxiety attack"},
}

var defaultUrgency = []string{
	"emergency", "urgent", "help", "immediately", "critical", "serious", "injured", "casualties",
	"dying", "not breathing", "asap",
}

// DefaultTerms 返回内置词表的副本。
func DefaultTerms() *Terms {
	terms := &Terms{
		Categories: make(map[facility.Category][]string, len(defaultBuckets)),
		Exclusions: make(map[facility.Category][]string, len(defaultExclusions)),
	}
	for category, words := range defaultBuckets {
		terms.Categories[category] = append([]string(nil), words...)
	}
	for category, phrases := range defaultExclusions {
		terms.Exclusions[category] = append([]string(nil), phrases...)
	}
	terms.Urgency = append([]string(nil), defaultUrgency...)
	return terms
}
