package domain

import "sort"

// QuestionKind enumerates the closed set of question variants.
type QuestionKind string

const (
	MultipleChoice QuestionKind = "multiple_choice"
	Estimate       QuestionKind = "estimate"
	Match          QuestionKind = "match"
	Order          QuestionKind = "order"
)

// Question is a tagged variant over the four question kinds. Answer is
// only set for multiple-choice questions; Increasing only matters for
// order questions. A question is immutable once issued to a round.
type Question struct {
	ID         string       `json:"id"`
	Kind       QuestionKind `json:"kind"`
	Prompt     string       `json:"prompt"`
	Activities []Activity   `json:"activities"`
	Answer     *Activity    `json:"answer,omitempty"`
	Increasing bool         `json:"increasing,omitempty"`
}

// Public returns a copy of the question safe to push to clients: the
// answer key is stripped and match/order activities keep their issued
// (shuffled) arrangement.
func (q Question) Public() Question {
	q.Answer = nil
	return q
}

// ChoiceSize is the number of activities a well-formed submission for
// this question must carry.
func (q Question) ChoiceSize() int {
	switch q.Kind {
	case MultipleChoice, Estimate:
		return 1
	default:
		return len(q.Activities)
	}
}

// CorrectAnswer returns the activities arranged as the correct answer,
// suitable for the reveal broadcast.
func (q Question) CorrectAnswer() []Activity {
	switch q.Kind {
	case MultipleChoice:
		if q.Answer == nil {
			return nil
		}
		return []Activity{*q.Answer}
	case Order:
		sorted := make([]Activity, len(q.Activities))
		copy(sorted, q.Activities)
		sort.Slice(sorted, func(i, j int) bool {
			if q.Increasing {
				return sorted[i].Cost < sorted[j].Cost
			}
			return sorted[i].Cost > sorted[j].Cost
		})
		return sorted
	default:
		// Estimate reveals its single target; match reveals the
		// reference arrangement as issued.
		out := make([]Activity, len(q.Activities))
		copy(out, q.Activities)
		return out
	}
}
