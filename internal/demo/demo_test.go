package demo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {
	r := NewResponder(DefaultRules())

	cases := []struct {
		in   string
		want Category
	}{
		{"Tell me about your skills", CategorySkills},
		{"asdfgh", CategoryDefault},
		{"", CategoryDefault},
		{"What PROJECTS have you built?", CategoryProjects},
		{"Who are you?", CategoryAssistant},
		{"Are you an AI?", CategoryAssistant},
		{"hello!", CategoryGreeting},
		// skills outranks projects and greeting
		{"Hi, what skills did your projects need?", CategorySkills},
		// keywords match whole words only
		{"maintain this", CategoryDefault},
		{"which tech stack do you use", CategorySkills},
		// bare "work" is too generic to mean projects
		{"how does this work", CategoryDefault},
		{"what have you worked on lately", CategoryProjects},
	}
	for _, tc := range cases {
		if got := r.Classify(tc.in); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRespond_Deterministic(t *testing.T) {
	r := NewResponder(DefaultRules())
	first := r.Respond("Tell me about your skills")
	for i := 0; i < 10; i++ {
		if got := r.Respond("Tell me about your skills"); got != first {
			t.Fatalf("reply changed between calls: %q vs %q", first, got)
		}
	}
	if r.Respond("asdfgh") != defaultReply {
		t.Errorf("expected default reply for unmatched input")
	}
	if r.Respond("asdfgh") == first {
		t.Errorf("default and skills replies should differ")
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
rules:
  - category: pricing
    keywords: ["price", "cost", "how much"]
    reply: "Rates are available on request."
  - category: skills
    keywords: ["skills"]
    reply: "Go, mostly."
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rules.Default != defaultReply {
		t.Errorf("expected built-in default reply, got %q", rules.Default)
	}

	r := NewResponder(rules)
	if got := r.Classify("How much does it cost?"); got != "pricing" {
		t.Errorf("got %q", got)
	}
	if got := r.Respond("list your skills"); got != "Go, mostly." {
		t.Errorf("got %q", got)
	}
}

func TestLoadRules_Invalid(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadRules(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("rules:\n  - category: x\n    reply: y\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRules(bad); err == nil {
		t.Error("expected error for rule without keywords")
	}
}
