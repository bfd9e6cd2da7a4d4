package judgment

import (
	"strings"

	"github.com/goccy/go-json"
)

const (
	LevelSafe    = "safe"
	LevelCaution = "caution"
	LevelToxic   = "toxic"
)

// SafetyJudgment is the structured answer to "is food X safe for dogs".
type SafetyJudgment struct {
	FoodName    string   `json:"foodName,omitempty"`
	SafetyLevel string   `json:"safetyLevel"`
	Reasoning   string   `json:"reasoning"`
	Symptoms    []string `json:"symptoms"`
	Advice      string   `json:"advice"`
	Heuristic   bool     `json:"heuristic,omitempty"`
}

type rawSafety struct {
	SafetyLevel      string   `json:"safetyLevel"`
	Reasoning        string   `json:"reasoning"`
	ShortExplanation string   `json:"shortExplanation"`
	Symptoms         []string `json:"symptoms"`
	Advice           string   `json:"advice"`
}

// StrictDecode parses the JSON shape the food-safety prompt requests. It
// reports false when no object is present, it does not parse, or the level
// is not one of safe, caution or toxic.
func StrictDecode(text string) (SafetyJudgment, bool) {
	obj, ok := jsonObject(text)
	if !ok {
		return SafetyJudgment{}, false
	}

	var raw rawSafety
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return SafetyJudgment{}, false
	}

	level := strings.ToLower(strings.TrimSpace(raw.SafetyLevel))
	switch level {
	case LevelSafe, LevelCaution, LevelToxic:
	default:
		return SafetyJudgment{}, false
	}

	reasoning := raw.Reasoning
	if reasoning == "" {
		reasoning = raw.ShortExplanation
	}

	return SafetyJudgment{
		SafetyLevel: level,
		Reasoning:   strings.TrimSpace(reasoning),
		Symptoms:    cleanList(raw.Symptoms),
		Advice:      strings.TrimSpace(raw.Advice),
	}, true
}

var (
	dangerTerms = newTermSet(
		"toxic", "poison", "deadly", "fatal", "lethal", "dangerous",
		"never feed", "never give", "do not feed", "don't feed", "do not give",
		"kidney failure", "liver failure", "emergency",
	)
	// Phrases that contain a danger word but deny it.
	deniedDangerTerms = newTermSet(
		"non-toxic", "nontoxic", "not toxic", "isn't toxic", "not poisonous", "not dangerous",
	)
	cautionTerms = newTermSet(
		"not safe", "unsafe", "isn't safe", "is not safe", "caution", "careful",
		"moderation", "in small amounts", "small quantities", "avoid", "harmful",
		"upset stomach", "not recommended", "risk", "may cause", "can cause",
	)
	safeTerms = newTermSet("safe", "healthy", "harmless", "fine for dogs", "okay for dogs")
)

// HeuristicExtract classifies free text by keyword. It never returns a less
// cautious level than the text supports. A danger term anywhere outside a
// negated phrase ("not toxic") yields toxic. A negated phrase or any caution
// term yields caution. Safe is only returned when nothing else matched.
func HeuristicExtract(text string) SafetyJudgment {
	lower := []byte(strings.ToLower(text))
	affirmed, denied := deniedDangerTerms.blank(lower)

	level := LevelCaution
	switch {
	case dangerTerms.in(affirmed):
		level = LevelToxic
	case denied, cautionTerms.in(lower):
		level = LevelCaution
	case safeTerms.in(lower):
		level = LevelSafe
	}

	advice := "If your dog shows any unusual symptoms, contact your veterinarian."
	if level == LevelToxic {
		advice = "Contact your veterinarian or an animal poison control line right away."
	}

	return SafetyJudgment{
		SafetyLevel: level,
		Reasoning:   truncate(text, maxHeuristicReasoning),
		Symptoms:    []string{},
		Advice:      advice,
		Heuristic:   true,
	}
}

// DecodeSafety is StrictDecode with HeuristicExtract as the fallback.
func DecodeSafety(text string) SafetyJudgment {
	if j, ok := StrictDecode(text); ok {
		return j
	}
	return HeuristicExtract(text)
}
