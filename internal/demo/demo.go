// Package demo answers chat input with canned replies when no model runtime
// is available.
package demo

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Category names the kind of reply a piece of input resolved to.
type Category string

const (
	CategorySkills    Category = "skills"
	CategoryProjects  Category = "projects"
	CategoryAssistant Category = "assistant"
	CategoryGreeting  Category = "greeting"
	CategoryDefault   Category = "default"
)

// Rule maps any of its keywords to a reply. Keywords are lower-case words or
// phrases matched on word boundaries.
type Rule struct {
	Category Category `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

// Rules is an ordered rule list plus the reply used when nothing matches.
type Rules struct {
	Rules   []Rule `yaml:"rules"`
	Default string `yaml:"default"`
}

const defaultReply = "I'm running in demo mode right now, so I can only answer a few " +
	"questions. Try asking about skills, projects, or what this assistant is."

// DefaultRules is the built-in rule set. Earlier rules win.
func DefaultRules() Rules {
	return Rules{
		Rules: []Rule{
			{
				Category: CategorySkills,
				Keywords: []string{"skill", "skills", "experience", "expertise", "technologies", "tech stack", "languages", "good at"},
				Reply: "Core skills include Go and Python backend development, API design, " +
					"distributed systems, and running language models on local hardware.",
			},
			{
				Category: CategoryProjects,
				Keywords: []string{"project", "projects", "portfolio", "built", "work on", "worked on", "working on"},
				Reply: "Recent projects include an edge-hosted LLM gateway, a self-hosted " +
					"document search service, and a handful of developer tools.",
			},
			{
				Category: CategoryAssistant,
				Keywords: []string{"assistant", "who are you", "what are you", "ai", "bot", "llm", "model", "demo"},
				Reply: "I'm the site assistant. Normally I'm backed by a locally hosted " +
					"language model; it is offline at the moment, so you're talking to demo mode.",
			},
			{
				Category: CategoryGreeting,
				Keywords: []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening"},
				Reply:    "Hello! Ask me about skills, projects, or this assistant.",
			},
		},
		Default: defaultReply,
	}
}

// LoadRules reads a YAML rule file. A file without a default reply keeps the
// built-in one.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read demo rules: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse demo rules: %w", err)
	}
	for i, r := range rules.Rules {
		if r.Category == "" || r.Reply == "" || len(r.Keywords) == 0 {
			return Rules{}, fmt.Errorf("demo rule %d: category, keywords and reply are required", i)
		}
	}
	if rules.Default == "" {
		rules.Default = defaultReply
	}
	return rules, nil
}

// Responder picks a canned reply. It is pure and safe for concurrent use.
type Responder struct {
	rules []compiledRule
	def   string
}

type compiledRule struct {
	Rule
	phrases []string
}

// NewResponder compiles rules into a Responder.
func NewResponder(rules Rules) *Responder {
	r := &Responder{def: rules.Default}
	if r.def == "" {
		r.def = defaultReply
	}
	for _, rule := range rules.Rules {
		c := compiledRule{Rule: rule}
		for _, kw := range rule.Keywords {
			if norm := normalize(kw); norm != "" {
				c.phrases = append(c.phrases, " "+norm+" ")
			}
		}
		r.rules = append(r.rules, c)
	}
	return r
}

// Classify returns the category of the first rule matching text.
func (r *Responder) Classify(text string) Category {
	if rule := r.match(text); rule != nil {
		return rule.Category
	}
	return CategoryDefault
}

// Respond returns the canned reply for text.
func (r *Responder) Respond(text string) string {
	if rule := r.match(text); rule != nil {
		return rule.Reply
	}
	return r.def
}

func (r *Responder) match(text string) *compiledRule {
	padded := " " + normalize(text) + " "
	for i := range r.rules {
		for _, p := range r.rules[i].phrases {
			if strings.Contains(padded, p) {
				return &r.rules[i]
			}
		}
	}
	return nil
}

// normalize lower-cases s and collapses every run of non-alphanumerics into a
// single space.
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	return strings.Join(fields, " ")
}
