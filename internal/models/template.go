package models

import (
	"strings"
)

// Placeholder is the token substituted with the entity in a prompt template.
const Placeholder = "{object}"

// PromptTemplate is a validated prompt with a single pre-located substitution point.
// The zero value is not usable; build one with ParseTemplate or InstructionTemplate.
type PromptTemplate struct {
	raw    string
	prefix string
	suffix string
}

// ParseTemplate validates s and locates its placeholder.
// Templates with zero or more than one placeholder are rejected.
func ParseTemplate(s string) (PromptTemplate, error) {
	if strings.TrimSpace(s) == "" {
		return PromptTemplate{}, &ConfigError{Field: "template", Reason: "template is empty"}
	}

	switch n := strings.Count(s, Placeholder); {
	case n == 0:
		return PromptTemplate{}, &ConfigError{Field: "template", Reason: "template has no " + Placeholder + " placeholder"}
	case n > 1:
		return PromptTemplate{}, &ConfigError{Field: "template", Reason: "template has more than one " + Placeholder + " placeholder"}
	}

	idx := strings.Index(s, Placeholder)
	return PromptTemplate{
		raw:    s,
		prefix: s[:idx],
		suffix: s[idx+len(Placeholder):],
	}, nil
}

// InstructionTemplate builds a template that appends a free-form instruction
// to the entity: "<entity> <instruction>".
func InstructionTemplate(instruction string) (PromptTemplate, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return PromptTemplate{}, &ConfigError{Field: "instruction", Reason: "instruction is empty"}
	}
	if strings.Contains(instruction, Placeholder) {
		return ParseTemplate(instruction)
	}
	return PromptTemplate{
		raw:    instruction,
		suffix: " " + instruction,
	}, nil
}

// MustParseTemplate is like ParseTemplate but panics on error. For tests and constants.
func MustParseTemplate(s string) PromptTemplate {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Render substitutes entity into the template.
func (t PromptTemplate) Render(entity string) string {
	return t.prefix + entity + t.suffix
}

// String returns the template text as supplied by the user.
func (t PromptTemplate) String() string {
	return t.raw
}

// IsZero reports whether t was never parsed.
func (t PromptTemplate) IsZero() bool {
	return t.raw == ""
}
