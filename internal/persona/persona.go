// Package persona holds the writer voices stories are generated with.
package persona

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/threadjuice/threadjuice/internal/models"
)

//go:embed personas.yaml
var defaultPersonas []byte

// Persona is a named writing voice.
type Persona struct {
	Name       string   `yaml:"name" json:"name"`
	Slug       string   `yaml:"slug" json:"slug"`
	Tone       string   `yaml:"tone" json:"tone"`
	Bio        string   `yaml:"bio" json:"bio"`
	StyleRules []string `yaml:"style_rules" json:"style_rules"`
	Categories []string `yaml:"categories" json:"categories"`
	Emotions   []string `yaml:"emotions" json:"emotions"`
}

// Ref returns the short form stored on a story.
func (p Persona) Ref() models.StoryPersona {
	return models.StoryPersona{Name: p.Name, Slug: p.Slug, Tone: p.Tone}
}

// Registry is an ordered, read-only set of personas.
type Registry struct {
	personas []Persona
	bySlug   map[string]int
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// Default returns the built-in personas.
func Default() *Registry {
	r, err := Parse(defaultPersonas)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded personas.yaml: %v", err))
	}
	return r
}

// Load reads personas from path, or returns the built-in set when path is
// empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona load: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("persona load %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a personas YAML document.
func Parse(data []byte) (*Registry, error) {
	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("no personas defined")
	}

	r := &Registry{bySlug: make(map[string]int, len(f.Personas))}
	for _, p := range f.Personas {
		p.Slug = strings.TrimSpace(p.Slug)
		if p.Name == "" || p.Slug == "" {
			return nil, fmt.Errorf("persona %q: name and slug are required", p.Name)
		}
		if _, dup := r.bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("duplicate persona slug %q", p.Slug)
		}
		r.bySlug[p.Slug] = len(r.personas)
		r.personas = append(r.personas, p)
	}
	return r, nil
}

// All returns the personas in file order.
func (r *Registry) All() []Persona {
	out := make([]Persona, len(r.personas))
	copy(out, r.personas)
	return out
}

// BySlug looks up a persona.
func (r *Registry) BySlug(slug string) (Persona, bool) {
	i, ok := r.bySlug[slug]
	if !ok {
		return Persona{}, false
	}
	return r.personas[i], true
}

// Select picks the persona with the highest affinity for the category (two
// points) and dominant emotion (one point). Ties are broken by a hash of
// seed so a given post always lands on the same voice.
func (r *Registry) Select(category, emotion, seed string) Persona {
	best := -1
	var tied []int
	for i, p := range r.personas {
		score := 0
		if contains(p.Categories, category) {
			score += 2
		}
		if contains(p.Emotions, emotion) {
			score++
		}
		switch {
		case score > best:
			best = score
			tied = append(tied[:0], i)
		case score == best:
			tied = append(tied, i)
		}
	}

	h := fnv.New32a()
	h.Write([]byte(seed))
	return r.personas[tied[int(h.Sum32()%uint32(len(tied)))]]
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
