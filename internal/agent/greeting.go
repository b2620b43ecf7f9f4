package agent

import (
	"strings"
	"unicode"
)

var defaultGreetings = []string{
	"hi", "hello", "hey", "hiya", "howdy", "greetings", "yo",
	"hi there", "hello there", "hey there",
	"good morning", "good afternoon", "good evening",
}

// GreetingMatcher matches a fixed phrase set, case-insensitively after
// trimming. A message also matches when it starts with a phrase and the rest
// has no letters or digits ("Hello!!", "hey :)"). A greeting followed by
// words ("hi there, how are you") is not matched and goes to the model.
type GreetingMatcher struct {
	phrases []string
}

func NewGreetingMatcher(phrases ...string) GreetingMatcher {
	if len(phrases) == 0 {
		phrases = defaultGreetings
	}
	norm := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = normalizeSpace(p); p != "" {
			norm = append(norm, p)
		}
	}
	return GreetingMatcher{phrases: norm}
}

func (g GreetingMatcher) Match(msg string) bool {
	msg = normalizeSpace(msg)
	if msg == "" {
		return false
	}
	for _, p := range g.phrases {
		if msg == p {
			return true
		}
		if rest, ok := strings.CutPrefix(msg, p); ok && !hasWordChars(rest) {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func hasWordChars(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
