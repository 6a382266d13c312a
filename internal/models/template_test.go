package models

import (
	"errors"
	"testing"
)

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"single placeholder", "What country is {object} headquartered in?", false},
		{"placeholder at start", "{object} founding year", false},
		{"placeholder at end", "CEO of {object}", false},
		{"no placeholder", "What country is it headquartered in?", true},
		{"two placeholders", "Is {object} bigger than {object}?", true},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"other braces ignored", "Revenue of {object} in {year}", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTemplate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestPromptTemplateRender(t *testing.T) {
	tmpl := MustParseTemplate("What country is {object} headquartered in?")

	if got := tmpl.Render("Acme Corp"); got != "What country is Acme Corp headquartered in?" {
		t.Errorf("Render() = %q", got)
	}

	// Entities containing the placeholder text are substituted verbatim, once.
	if got := tmpl.Render("{object}"); got != "What country is {object} headquartered in?" {
		t.Errorf("Render() with placeholder-like entity = %q", got)
	}

	if tmpl.String() != "What country is {object} headquartered in?" {
		t.Errorf("String() = %q", tmpl.String())
	}
}

func TestInstructionTemplate(t *testing.T) {
	t.Run("appends instruction", func(t *testing.T) {
		tmpl, err := InstructionTemplate("  number of employees ")
		if err != nil {
			t.Fatalf("InstructionTemplate() error = %v", err)
		}
		if got := tmpl.Render("Globex"); got != "Globex number of employees" {
			t.Errorf("Render() = %q", got)
		}
		if tmpl.String() != "number of employees" {
			t.Errorf("String() = %q", tmpl.String())
		}
	})

	t.Run("instruction with placeholder is parsed as template", func(t *testing.T) {
		tmpl, err := InstructionTemplate("CEO of {object}")
		if err != nil {
			t.Fatalf("InstructionTemplate() error = %v", err)
		}
		if got := tmpl.Render("Globex"); got != "CEO of Globex" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("empty instruction", func(t *testing.T) {
		_, err := InstructionTemplate(" ")
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %v", err)
		}
	})
}

func TestPromptTemplateIsZero(t *testing.T) {
	var zero PromptTemplate
	if !zero.IsZero() {
		t.Error("zero value should report IsZero")
	}
	if MustParseTemplate("{object}").IsZero() {
		t.Error("parsed template should not report IsZero")
	}
}
