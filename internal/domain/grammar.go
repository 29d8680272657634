package domain

// GrammarLabel is the quality label assigned by the grammar service.
type GrammarLabel string

const (
	GrammarAcceptable GrammarLabel = "ACCEPTABLE"
	GrammarBad        GrammarLabel = "BAD"
)

// GrammarEvaluation is the transient scoring result for one input.
type GrammarEvaluation struct {
	Label GrammarLabel
	Score int
}

// GrammarPolicy turns a 0-100 score into a label. With BadAbove the score is
// read as the probability of an unacceptable sentence, so scores strictly
// above Threshold are BAD; otherwise scores strictly below Threshold are BAD.
// A zero Threshold disables local labelling.
type GrammarPolicy struct {
	Threshold int
	BadAbove  bool
}

// Enabled reports whether the policy overrides the service label.
func (p GrammarPolicy) Enabled() bool {
	return p.Threshold > 0
}

// Label applies the policy to score.
func (p GrammarPolicy) Label(score int) GrammarLabel {
	if p.BadAbove {
		if score > p.Threshold {
			return GrammarBad
		}
		return GrammarAcceptable
	}
	if score < p.Threshold {
		return GrammarBad
	}
	return GrammarAcceptable
}

// NeedsFeedback reports whether score reaches cutoff in the direction the
// policy treats as worse grammar.
func (p GrammarPolicy) NeedsFeedback(score, cutoff int) bool {
	if p.BadAbove {
		return score >= cutoff
	}
	return score <= cutoff
}
