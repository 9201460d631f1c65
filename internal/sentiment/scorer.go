// Package sentiment provides the lexical sentiment scorer collaborator.
// Scoring is rule-based: weighted keyword presence with negation
// handling, no model calls. Score is a pure function.
package sentiment

import "strings"

// Scorer scores the emotional valence of a message in [-1, 1].
type Scorer interface {
	// Score returns the valence of text: negative for hostile or sad
	// messages, positive for warm ones, 0 for neutral. Pure, no side
	// effects.
	Score(text string) float64
}

type weightedTerm struct {
	term   string
	weight float64
}

// positiveTerms and negativeTerms are weighted cue tables. Strong cues
// carry more weight so a single hit moves the score meaningfully; mild
// cues need reinforcement.
var positiveTerms = []weightedTerm{
	{"love", 0.5}, {"miss you", 0.5}, {"thank", 0.4}, {"amazing", 0.4},
	{"wonderful", 0.4}, {"happy", 0.35}, {"great", 0.3}, {"nice", 0.25},
	{"good", 0.2}, {"haha", 0.2}, {"lol", 0.2}, {"😊", 0.3}, {"❤", 0.5},
}

var negativeTerms = []weightedTerm{
	{"hate", 0.5}, {"stupid", 0.5}, {"shut up", 0.5}, {"idiot", 0.5},
	{"angry", 0.4}, {"awful", 0.4}, {"terrible", 0.4}, {"annoying", 0.35},
	{"sad", 0.3}, {"boring", 0.3}, {"bad", 0.2}, {"ugh", 0.2}, {"😠", 0.4},
}

// negators flip the sign of a cue they directly precede ("not good").
var negators = []string{"not", "never", "no", "don't", "dont", "isn't", "isnt"}

// LexicalScorer is the default rule-based Scorer.
type LexicalScorer struct{}

// NewLexicalScorer returns the default scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score sums weighted cue hits, flips the sign of negated cues, and
// clamps the result to [-1, 1].
func (s *LexicalScorer) Score(text string) float64 {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return 0
	}

	score := 0.0
	score += scoreTerms(lower, positiveTerms, +1)
	score += scoreTerms(lower, negativeTerms, -1)

	if score < -1 {
		score = -1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// scoreTerms accumulates sign*weight for each cue present, flipping the
// sign when the cue's nearest preceding word is a negator.
func scoreTerms(lower string, terms []weightedTerm, sign float64) float64 {
	total := 0.0
	for _, wt := range terms {
		idx := strings.Index(lower, wt.term)
		if idx < 0 {
			continue
		}
		s := sign
		if isNegated(lower, idx) {
			s = -s
		}
		total += s * wt.weight
	}
	return total
}

// isNegated reports whether the word immediately before position idx is a
// negator.
func isNegated(lower string, idx int) bool {
	prefix := strings.Fields(lower[:idx])
	if len(prefix) == 0 {
		return false
	}
	prev := strings.Trim(prefix[len(prefix)-1], ".,!?")
	for _, n := range negators {
		if prev == n {
			return true
		}
	}
	return false
}
