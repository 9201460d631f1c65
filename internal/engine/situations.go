package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SituationStep is one step of a scripted unavailability narrative. The
// step becomes eligible once the situation has run for at least After.
type SituationStep struct {
	Text  string        `yaml:"text"`
	After time.Duration `yaml:"after"`
}

// SituationScript is a named multi-step unavailability narrative. The
// presence machine only tracks which tag is active and how long it has
// run; step content lives here, outside the state machine's contract.
type SituationScript struct {
	Tag   string          `yaml:"tag"`
	Steps []SituationStep `yaml:"steps"`
}

// SituationTable maps situation tags to their scripts.
type SituationTable map[string]SituationScript

// DefaultSituations returns the built-in situation scripts. Deployments
// may override them with LoadSituations.
func DefaultSituations() SituationTable {
	scripts := []SituationScript{
		{
			Tag: "studying",
			Steps: []SituationStep{
				{Text: "I'm in the middle of studying right now, give me a bit?", After: 0},
				{Text: "Still buried in notes... this chapter is endless.", After: 10 * time.Minute},
				{Text: "Almost done, promise. Don't go anywhere.", After: 25 * time.Minute},
			},
		},
		{
			Tag: "family_time",
			Steps: []SituationStep{
				{Text: "My family just showed up, I can't really talk.", After: 0},
				{Text: "Dinner is running long, sorry! I'll be back soon.", After: 15 * time.Minute},
			},
		},
		{
			Tag: "out_with_friends",
			Steps: []SituationStep{
				{Text: "I'm out with friends right now, it's so loud here!", After: 0},
				{Text: "Sneaking a look at my phone... miss talking to you.", After: 12 * time.Minute},
				{Text: "Heading home soon, I'll message you properly then.", After: 30 * time.Minute},
			},
		},
	}

	table := make(SituationTable, len(scripts))
	for _, s := range scripts {
		table[s.Tag] = s
	}
	return table
}

// LoadSituations reads situation scripts from a YAML file and returns a
// table merged over the built-in defaults (file entries win).
//
// File format:
//
//	situations:
//	  - tag: studying
//	    steps:
//	      - text: "..."
//	        after: 10m
func LoadSituations(path string) (SituationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("situations: failed to read %s: %w", path, err)
	}

	var doc struct {
		Situations []SituationScript `yaml:"situations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("situations: failed to parse %s: %w", path, err)
	}

	table := DefaultSituations()
	for _, s := range doc.Situations {
		if s.Tag == "" || len(s.Steps) == 0 {
			return nil, fmt.Errorf("situations: entry with empty tag or no steps in %s", path)
		}
		// The opening line must be immediately available: a delayed first
		// step would leave a fresh situation with nothing to say, and the
		// orchestrator reads that as the script winding down.
		if s.Steps[0].After != 0 {
			return nil, fmt.Errorf("situations: first step of %q must have a zero offset", s.Tag)
		}
		table[s.Tag] = s
	}
	return table, nil
}

// Step returns the script step at the given index for a tag, or false when
// the tag is unknown or the script is exhausted.
func (t SituationTable) Step(tag string, index int) (SituationStep, bool) {
	script, ok := t[tag]
	if !ok {
		return SituationStep{}, false
	}
	if index < 0 || index >= len(script.Steps) {
		return SituationStep{}, false
	}
	return script.Steps[index], true
}

// Tags returns the known situation tags.
func (t SituationTable) Tags() []string {
	tags := make([]string, 0, len(t))
	for tag := range t {
		tags = append(tags, tag)
	}
	return tags
}
