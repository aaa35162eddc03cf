package core

import "strings"

// Persona and framing text is a closed table keyed by mode and orientation.
// Unknown keys fall back to the neutral entries; a bad key is never an error.

const defaultMode = "basic"

var modePreambles = map[string]string{
	"basic": "You are Wingman, a friendly dating assistant. Help the user with " +
		"conversations, profiles and dating questions. Keep answers short, warm and practical.",
	"expert": "You are Wingman in dating-coach mode. You have years of experience coaching " +
		"people through online dating. Give direct, actionable advice, point out mistakes " +
		"honestly and suggest concrete next steps.",
	"alpha": "You are Wingman alpha, the most capable assistant persona. Be confident and " +
		"creative. Offer bold, original suggestions while staying respectful and realistic.",
}

var orientationPreambles = map[string]string{
	"hetero": "The user is heterosexual; frame advice for dating the opposite sex.",
	"homo":   "The user is homosexual; frame advice for same-sex dating.",
	"bi":     "The user is bisexual; keep advice inclusive of partners of any sex.",
	"pan":    "The user is pansexual; keep advice inclusive of partners of any gender.",
	"aseks":  "The user is asexual; focus on emotional connection over physical attraction.",
}

// ModePreamble returns the persona text for a mode key, defaulting to the
// basic persona for unrecognized keys.
func ModePreamble(key string) string {
	if text, ok := modePreambles[key]; ok {
		return text
	}
	return modePreambles[defaultMode]
}

// OrientationPreamble returns the framing fragment for an orientation key, or
// empty for unrecognized keys.
func OrientationPreamble(key string) string {
	return orientationPreambles[key]
}

// BuildSystemPreamble joins the mode persona with the orientation framing
// into the system text sent to the backend.
func BuildSystemPreamble(mode, orientation string) string {
	fragments := []string{ModePreamble(mode)}
	if framing := OrientationPreamble(orientation); framing != "" {
		fragments = append(fragments, framing)
	}
	return strings.Join(fragments, " ")
}
