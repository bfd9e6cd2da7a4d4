package judgment

import (
	"strings"

	"github.com/goccy/go-json"
)

const (
	UrgencyImmediate = "immediate"
	UrgencyUrgent    = "urgent"
	UrgencyModerate  = "moderate"
)

// TriageResult is the structured answer to a symptom check.
type TriageResult struct {
	Urgency            string   `json:"urgency"`
	PossibleConditions []string `json:"possibleConditions"`
	ImmediateActions   []string `json:"immediateActions"`
	VeterinaryAdvice   string   `json:"veterinaryAdvice"`
	Heuristic          bool     `json:"heuristic,omitempty"`
}

type rawTriage struct {
	Urgency            string   `json:"urgency"`
	PossibleConditions []string `json:"possibleConditions"`
	ImmediateActions   []string `json:"immediateActions"`
	VeterinaryAdvice   string   `json:"veterinaryAdvice"`
	WhenToSeeVet       string   `json:"whenToSeeVet"`
}

// StrictDecodeTriage parses the triage JSON shape. "critical" is accepted as
// an alias for immediate.
func StrictDecodeTriage(text string) (TriageResult, bool) {
	obj, ok := jsonObject(text)
	if !ok {
		return TriageResult{}, false
	}

	var raw rawTriage
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return TriageResult{}, false
	}

	urgency := strings.ToLower(strings.TrimSpace(raw.Urgency))
	switch urgency {
	case "critical":
		urgency = UrgencyImmediate
	case UrgencyImmediate, UrgencyUrgent, UrgencyModerate:
	default:
		return TriageResult{}, false
	}

	advice := raw.VeterinaryAdvice
	if advice == "" {
		advice = raw.WhenToSeeVet
	}

	return TriageResult{
		Urgency:            urgency,
		PossibleConditions: cleanList(raw.PossibleConditions),
		ImmediateActions:   cleanList(raw.ImmediateActions),
		VeterinaryAdvice:   strings.TrimSpace(advice),
	}, true
}

var emergencyTerms = newTermSet(
	"immediate", "emergency", "right away", "right now", "life-threatening", "critical",
	"seizure", "collapse", "unconscious", "not breathing", "difficulty breathing",
	"bloat", "heavy bleeding", "poison",
)

// HeuristicTriage never returns moderate: without a parseable answer the
// owner is told to get care soon, or now if emergency language appears.
func HeuristicTriage(text string) TriageResult {
	urgency := UrgencyUrgent
	if emergencyTerms.in([]byte(strings.ToLower(text))) {
		urgency = UrgencyImmediate
	}

	return TriageResult{
		Urgency:            urgency,
		PossibleConditions: []string{},
		ImmediateActions:   []string{"Contact your veterinarian"},
		VeterinaryAdvice:   truncate(text, maxHeuristicReasoning),
		Heuristic:          true,
	}
}

// DecodeTriage is StrictDecodeTriage with HeuristicTriage as the fallback.
func DecodeTriage(text string) TriageResult {
	if r, ok := StrictDecodeTriage(text); ok {
		return r
	}
	return HeuristicTriage(text)
}
