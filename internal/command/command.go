package command

import (
	"regexp"
	"strings"
)

// Parsed is the result of recognizing a generator slash-command. It is
// consumed by the generation workflow immediately and never stored.
type Parsed struct {
	Kind      string
	Objective string
	Context   *string
}

// Generator describes one artifact generator the backend exposes.
type Generator struct {
	Name  string `yaml:"name"`
	Path  string `yaml:"path"`
	Usage string `yaml:"usage"`
}

// Registry is the set of recognized generator commands. Lookup is
// case-insensitive on the command name.
type Registry struct {
	generators []Generator
	byName     map[string]Generator
}

func NewRegistry(generators []Generator) *Registry {
	r := &Registry{byName: make(map[string]Generator, len(generators))}
	for _, g := range generators {
		name := strings.ToLower(strings.TrimSpace(g.Name))
		if name == "" {
			continue
		}
		if _, exists := r.byName[name]; exists {
			continue
		}
		g.Name = name
		r.generators = append(r.generators, g)
		r.byName[name] = g
	}
	return r
}

// DefaultRegistry covers the two generators every backend deployment ships.
func DefaultRegistry() *Registry {
	return NewRegistry([]Generator{
		{
			Name:  "story",
			Path:  "/gen/user-story",
			Usage: "/story <objective> [| ctx: <extra context>]",
		},
		{
			Name:  "rtr",
			Path:  "/gen/rtr",
			Usage: "/rtr <objective> [| ctx: <extra context>]",
		},
	})
}

func (r *Registry) Generators() []Generator {
	out := make([]Generator, len(r.generators))
	copy(out, r.generators)
	return out
}

func (r *Registry) Lookup(name string) (Generator, bool) {
	g, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

var (
	whitespaceRunRe = regexp.MustCompile(`\s+`)
	contextSplitRe  = regexp.MustCompile(`(?i)\|\s*ctx\s*:`)
)

// Parse classifies raw input. ok is false when the input is ordinary chat.
// Once the command token matched, ok is always true, even with an empty
// objective; the caller decides whether to show usage instead of sending
// a request.
func (r *Registry) Parse(raw string) (Parsed, bool) {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "/") {
		return Parsed{}, false
	}

	token := text
	rest := ""
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		token = text[:i]
		rest = text[i+1:]
	}
	gen, ok := r.Lookup(strings.TrimPrefix(token, "/"))
	if !ok {
		return Parsed{}, false
	}

	rest = strings.TrimSpace(whitespaceRunRe.ReplaceAllString(rest, " "))
	if rest == "" {
		return Parsed{Kind: gen.Name}, true
	}

	parts := contextSplitRe.Split(rest, 2)
	objective := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return Parsed{Kind: gen.Name, Objective: objective}, true
	}
	ctx := strings.TrimSpace(parts[1])
	return Parsed{Kind: gen.Name, Objective: objective, Context: &ctx}, true
}
