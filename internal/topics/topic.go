package topics

import (
	"fmt"
	"strings"
)

// Topic describes one named channel on the chat transport. Topics are
// declared once with a pattern and formatted with concrete variables at
// the call site, instead of ad-hoc string concatenation.
type Topic struct {
	name        string
	description string
	pattern     string
}

// NewTopic creates a new Topic definition.
func NewTopic(name, description, pattern string) Topic {
	return Topic{
		name:        name,
		description: description,
		pattern:     pattern,
	}
}

// Name returns the topic's unique identifier.
func (t Topic) Name() string {
	return t.name
}

// Description returns a human-readable description of the topic.
func (t Topic) Description() string {
	return t.description
}

// Pattern returns the topic's pattern string with placeholders.
func (t Topic) Pattern() string {
	return t.pattern
}

// Format generates the full topic string using the provided variables.
// It fails if any placeholder in the pattern is left unreplaced.
func (t Topic) Format(vars map[string]string) (string, error) {
	result := t.pattern
	for k, v := range vars {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}

	if strings.Contains(result, "{") || strings.Contains(result, "}") {
		return "", fmt.Errorf("topic %q: unresolved placeholders in %q", t.name, result)
	}
	return result, nil
}
