package game

import (
	"fmt"
	"sort"

	"trivia-service/internal/domain"
)

// Score grades every submitted answer for a question and returns the
// fractional credit per player, each in [0, 1]. The answer set maps
// player id to that player's latest submission. A nil set fails with
// ErrNoAnswers; a submission with the wrong activity count fails with
// ErrAnswerLength so callers can tell "nobody answered" from "malformed
// answer".
func Score(q domain.Question, answers map[string]domain.Answer) (map[string]float64, error) {
	if answers == nil {
		return nil, domain.ErrNoAnswers
	}

	switch q.Kind {
	case domain.MultipleChoice:
		return scoreMultipleChoice(q, answers)
	case domain.Estimate:
		return scoreEstimate(q, answers)
	case domain.Match:
		return scoreMatch(q, answers)
	case domain.Order:
		return scoreOrder(q, answers)
	default:
		return nil, fmt.Errorf("unknown question kind %q", q.Kind)
	}
}

// scoreMultipleChoice awards full credit when the chosen activity's cost
// matches the designated answer's cost, else nothing.
func scoreMultipleChoice(q domain.Question, answers map[string]domain.Answer) (map[string]float64, error) {
	scores := make(map[string]float64, len(answers))
	for playerID, ans := range answers {
		if len(ans.Choice) != 1 {
			return nil, fmt.Errorf("player %s: %w", playerID, domain.ErrAnswerLength)
		}
		if q.Answer != nil && ans.Choice[0].Cost == q.Answer.Cost {
			scores[playerID] = 1
		} else {
			scores[playerID] = 0
		}
	}
	return scores, nil
}

// scoreEstimate awards rank-based partial credit: players are ranked by
// the distinct absolute errors of their guesses, closest first. With k
// distinct errors the step between adjacent ranks is 1/(k-1); a single
// distinct error (including a single submission) scores full credit for
// everyone.
func scoreEstimate(q domain.Question, answers map[string]domain.Answer) (map[string]float64, error) {
	target := q.Activities[0].Cost

	errs := make(map[string]int64, len(answers))
	seen := make(map[int64]struct{})
	for playerID, ans := range answers {
		if len(ans.Choice) != 1 {
			return nil, fmt.Errorf("player %s: %w", playerID, domain.ErrAnswerLength)
		}
		diff := ans.Choice[0].Cost - target
		if diff < 0 {
			diff = -diff
		}
		errs[playerID] = diff
		seen[diff] = struct{}{}
	}

	distinct := make([]int64, 0, len(seen))
	for diff := range seen {
		distinct = append(distinct, diff)
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })

	scores := make(map[string]float64, len(answers))
	if len(distinct) <= 1 {
		for playerID := range errs {
			scores[playerID] = 1
		}
		return scores, nil
	}

	step := 1.0 / float64(len(distinct)-1)
	for playerID, diff := range errs {
		rank := sort.Search(len(distinct), func(i int) bool { return distinct[i] >= diff })
		points := 1 - float64(rank)*step
		if points-step < 0 {
			// avoids rounding artifacts like 3*(1/3) != 1 at the bottom rank
			points = 0
		}
		scores[playerID] = points
	}
	return scores, nil
}

// scoreMatch awards 1/n per position whose submitted activity has the
// same cost as the reference activity at that position.
func scoreMatch(q domain.Question, answers map[string]domain.Answer) (map[string]float64, error) {
	n := len(q.Activities)
	step := 1.0 / float64(n)

	scores := make(map[string]float64, len(answers))
	for playerID, ans := range answers {
		if len(ans.Choice) != n {
			return nil, fmt.Errorf("player %s: %w", playerID, domain.ErrAnswerLength)
		}
		points := 0.0
		for i := 0; i < n; i++ {
			if ans.Choice[i].Cost == q.Activities[i].Cost {
				points += step
			}
		}
		if points+step > 1 {
			points = 1
		}
		scores[playerID] = points
	}
	return scores, nil
}

// scoreOrder awards 1/(n-1) per adjacent pair arranged in the question's
// direction. Equal costs satisfy either direction.
func scoreOrder(q domain.Question, answers map[string]domain.Answer) (map[string]float64, error) {
	n := len(q.Activities)
	step := 1.0 / float64(n-1)

	scores := make(map[string]float64, len(answers))
	for playerID, ans := range answers {
		if len(ans.Choice) != n {
			return nil, fmt.Errorf("player %s: %w", playerID, domain.ErrAnswerLength)
		}
		points := 0.0
		for i := 1; i < n; i++ {
			prev, cur := ans.Choice[i-1].Cost, ans.Choice[i].Cost
			switch {
			case prev == cur:
				points += step
			case cur > prev && q.Increasing:
				points += step
			case cur < prev && !q.Increasing:
				points += step
			}
		}
		if points+step > 1 {
			points = 1
		}
		scores[playerID] = points
	}
	return scores, nil
}
