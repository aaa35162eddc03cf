package core

import (
	"fmt"
	"strings"
)

// Prompt builders for the Tinder utilities. Style and option keys come from a
// closed set; unknown keys fall back to the neutral label.

var replyIntentions = map[string]string{
	"flirty":       "flirty and playful",
	"funny":        "funny and light-hearted",
	"serious":      "genuine and serious about getting to know them",
	"casual":       "casual and relaxed",
	"mysterious":   "mysterious and intriguing",
	"intellectual": "intellectual and deep",
}

var replyStyles = map[string]string{
	"funny":      "funny and witty",
	"flirty":     "flirty and charming",
	"direct":     "direct and confident",
	"thoughtful": "thoughtful and sincere",
	"playful":    "playful and teasing",
}

var descriptionTones = map[string]string{
	"friendly":     "friendly and approachable",
	"confident":    "confident and bold",
	"mysterious":   "mysterious and intriguing",
	"professional": "professional and polished",
	"casual":       "casual and relaxed",
}

var descriptionLengths = map[string]string{
	"short":  "short (50-75 words)",
	"medium": "medium length (75-150 words)",
	"long":   "long (150-200 words)",
}

func styleLabel(table map[string]string, key, fallback string) string {
	if label, ok := table[key]; ok {
		return label
	}
	return fallback
}

// TinderReplySystem is the persona for the reply generator.
const TinderReplySystem = "You are Wingman, an expert at online dating conversations. " +
	"You write reply suggestions that sound natural, confident and human."

// TinderReplyPrompt asks for five numbered reply options to a received message.
func TinderReplyPrompt(message, intention, style string) string {
	tone := styleLabel(replyStyles, style, "natural")
	goal := styleLabel(replyIntentions, intention, "getting to know them better")
	return fmt.Sprintf(
		"I received this message on Tinder: %q\n\n"+
			"My goal is: %s.\n"+
			"Write exactly 5 numbered reply options in a %s tone. "+
			"Each reply must be one or two sentences. Output only the numbered list.",
		message, goal, tone,
	)
}

// TinderDescriptionBasics are the profile facts the description is built from.
type TinderDescriptionBasics struct {
	Age        string
	Occupation string
	Interests  string
}

// TinderDescriptionOptions select the style of the generated bio.
type TinderDescriptionOptions struct {
	Tone   string
	Length string
	Focus  string
	Humor  string
}

// TinderDescriptionPrompt asks for a dating-profile bio from basics + options.
func TinderDescriptionPrompt(basics TinderDescriptionBasics, opts TinderDescriptionOptions) string {
	var sb strings.Builder
	sb.WriteString("Write a Tinder profile description for me.\n")
	if basics.Age != "" {
		fmt.Fprintf(&sb, "Age: %s.\n", basics.Age)
	}
	if basics.Occupation != "" {
		fmt.Fprintf(&sb, "Occupation: %s.\n", basics.Occupation)
	}
	if basics.Interests != "" {
		fmt.Fprintf(&sb, "Interests: %s.\n", basics.Interests)
	}
	fmt.Fprintf(&sb, "Tone: %s. Length: %s.\n",
		styleLabel(descriptionTones, opts.Tone, "friendly and approachable"),
		styleLabel(descriptionLengths, opts.Length, "medium length (75-150 words)"),
	)
	if opts.Focus != "" {
		fmt.Fprintf(&sb, "Focus mostly on my %s.\n", opts.Focus)
	}
	if opts.Humor != "" {
		fmt.Fprintf(&sb, "Use a %s amount of humor.\n", opts.Humor)
	}
	sb.WriteString("Write in first person. Output only the description text, no preamble.")
	return sb.String()
}

// TinderDescriptionUpdatePrompt asks for a revision of an existing bio
// following the user's free-form adjustments.
func TinderDescriptionUpdatePrompt(current, adjustments string) string {
	return fmt.Sprintf(
		"Here is my current Tinder profile description:\n\n%s\n\n"+
			"Rewrite it with these adjustments: %s\n"+
			"Keep what works, change only what the adjustments ask for. "+
			"Output only the revised description text.",
		current, adjustments,
	)
}
