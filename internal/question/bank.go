package question

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trivia-service/internal/domain"
)

const (
	// minPoolSize is the smallest activity pool any question can be
	// generated from (answer plus distractors).
	minPoolSize = 5
	// optionCount is how many choices multiple-choice, match and order
	// questions present.
	optionCount = 4
	// defaultAttempts bounds retries when a picked answer cannot yield a
	// valid option set, so generation never loops forever.
	defaultAttempts = 20
)

// ActivityRepository supplies the activity pool questions are built from.
type ActivityRepository interface {
	GetActivities(ctx context.Context) ([]domain.Activity, error)
}

// mcFlavor is a multiple-choice prompt variation.
type mcFlavor int

const (
	guessCost mcFlavor = iota
	guessActivity
	insteadOf
)

// Bank generates readily-scoreable questions of the four kinds from the
// weighted activity pool. It guarantees enough distinct options exist
// before committing to a question and fails loudly otherwise.
type Bank struct {
	activities ActivityRepository
	log        *zap.Logger
	attempts   int

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBank(activities ActivityRepository, log *zap.Logger) *Bank {
	return &Bank{
		activities: activities,
		log:        log,
		attempts:   defaultAttempts,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Provide generates n distinct questions, cycling through the question
// kinds so the set is balanced, then shuffling. Activities whose ids
// appear in excludeIDs are kept out of the pool. It returns
// ErrNotEnoughActivities when the pool cannot support n questions.
func (b *Bank) Provide(ctx context.Context, n int, excludeIDs []string) ([]domain.Question, error) {
	pool, err := b.activities.GetActivities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}

	if len(excludeIDs) > 0 {
		excluded := make(map[string]struct{}, len(excludeIDs))
		for _, id := range excludeIDs {
			excluded[id] = struct{}{}
		}
		filtered := make([]domain.Activity, 0, len(pool))
		for _, a := range pool {
			if _, ok := excluded[a.ID]; !ok {
				filtered = append(filtered, a)
			}
		}
		pool = filtered
	}

	if len(pool) < minPoolSize {
		return nil, fmt.Errorf("%w: pool has %d activities", domain.ErrNotEnoughActivities, len(pool))
	}

	kinds := []domain.QuestionKind{domain.MultipleChoice, domain.Estimate, domain.Match, domain.Order}

	// Generate a balanced pool, a multiple of the kind count, then trim.
	poolSize := n
	if rem := poolSize % len(kinds); rem != 0 {
		poolSize += len(kinds) - rem
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	questions := make([]domain.Question, 0, poolSize)
	failed := 0
	for idx := 0; idx < poolSize; idx++ {
		if failed >= b.attempts {
			b.log.Error("question generation exhausted retries",
				zap.Int("generated", len(questions)),
				zap.Int("wanted", n))
			return nil, domain.ErrNotEnoughActivities
		}

		q, err := b.generateLocked(kinds[idx%len(kinds)], pool)
		if err != nil {
			failed++
			idx--
			continue
		}
		questions = append(questions, q)
	}

	b.rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	return questions[:n], nil
}

func (b *Bank) generateLocked(kind domain.QuestionKind, pool []domain.Activity) (domain.Question, error) {
	answer := pool[b.rnd.Intn(len(pool))]
	desc := sanitizeDescription(answer.Description)

	switch kind {
	case domain.MultipleChoice:
		return b.generateMultipleChoiceLocked(pool, answer, desc)

	case domain.Estimate:
		return domain.Question{
			ID:         uuid.NewString(),
			Kind:       domain.Estimate,
			Prompt:     "How much does " + desc + " cost approximately?",
			Activities: []domain.Activity{answer},
		}, nil

	case domain.Match:
		chosen, err := b.pickDistinctCostsLocked(pool, optionCount)
		if err != nil {
			return domain.Question{}, err
		}
		return domain.Question{
			ID:         uuid.NewString(),
			Kind:       domain.Match,
			Prompt:     "Match each activity with its energy cost",
			Activities: chosen,
		}, nil

	case domain.Order:
		chosen, err := b.pickDistinctCostsLocked(pool, optionCount)
		if err != nil {
			return domain.Question{}, err
		}
		increasing := b.rnd.Intn(2) == 0
		prompt := "Order these activities from least to most energy"
		if !increasing {
			prompt = "Order these activities from most to least energy"
		}
		return domain.Question{
			ID:         uuid.NewString(),
			Kind:       domain.Order,
			Prompt:     prompt,
			Activities: chosen,
			Increasing: increasing,
		}, nil
	}

	return domain.Question{}, fmt.Errorf("unknown question kind %q", kind)
}

func (b *Bank) generateMultipleChoiceLocked(pool []domain.Activity, answer domain.Activity, desc string) (domain.Question, error) {
	flavor := mcFlavor(b.rnd.Intn(3))

	correct := answer
	var prompt string
	switch flavor {
	case guessCost:
		prompt = "What is the energetic cost of " + desc + "?"
	case guessActivity:
		prompt = fmt.Sprintf("Which of these activities costs %dWh?", answer.Cost)
	case insteadOf:
		prompt = "Instead of " + desc + ", you could be..."
		closest, ok := closestDifferentCost(pool, answer)
		if !ok {
			return domain.Question{}, domain.ErrNotEnoughActivities
		}
		correct = closest
	}

	options, err := b.multipleChoiceOptionsLocked(pool, correct)
	if err != nil {
		return domain.Question{}, err
	}
	return domain.Question{
		ID:         uuid.NewString(),
		Kind:       domain.MultipleChoice,
		Prompt:     prompt,
		Activities: options,
		Answer:     &correct,
	}, nil
}

// multipleChoiceOptionsLocked builds the option set around the answer:
// every distractor shares the answer's cost order of magnitude but has a
// distinct leading digit, so no two options are scoring-ambiguous.
func (b *Bank) multipleChoiceOptionsLocked(pool []domain.Activity, answer domain.Activity) ([]domain.Activity, error) {
	magnitude := int64(1)
	for c := answer.Cost; c >= 10; c /= 10 {
		magnitude *= 10
	}
	lower, upper := magnitude, magnitude*10

	candidates := make([]domain.Activity, 0, len(pool))
	for _, a := range pool {
		if a.Cost != answer.Cost && a.Cost >= lower && a.Cost < upper {
			candidates = append(candidates, a)
		}
	}
	b.rnd.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	chosen := []domain.Activity{answer}
	for _, cand := range candidates {
		distinct := true
		for _, c := range chosen {
			if cand.Cost/magnitude == c.Cost/magnitude {
				distinct = false
				break
			}
		}
		if distinct {
			chosen = append(chosen, cand)
			if len(chosen) == optionCount {
				break
			}
		}
	}
	if len(chosen) < optionCount {
		return nil, domain.ErrNotEnoughActivities
	}

	b.rnd.Shuffle(len(chosen), func(i, j int) {
		chosen[i], chosen[j] = chosen[j], chosen[i]
	})
	return chosen, nil
}

// pickDistinctCostsLocked selects k activities with pairwise distinct
// costs, in shuffled order.
func (b *Bank) pickDistinctCostsLocked(pool []domain.Activity, k int) ([]domain.Activity, error) {
	shuffled := make([]domain.Activity, len(pool))
	copy(shuffled, pool)
	b.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	seen := make(map[int64]struct{}, k)
	chosen := make([]domain.Activity, 0, k)
	for _, a := range shuffled {
		if _, ok := seen[a.Cost]; ok {
			continue
		}
		seen[a.Cost] = struct{}{}
		chosen = append(chosen, a)
		if len(chosen) == k {
			return chosen, nil
		}
	}
	return nil, domain.ErrNotEnoughActivities
}

func closestDifferentCost(pool []domain.Activity, answer domain.Activity) (domain.Activity, bool) {
	var best domain.Activity
	bestDist := int64(-1)
	for _, a := range pool {
		if a.Cost == answer.Cost {
			continue
		}
		dist := a.Cost - answer.Cost
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = a, dist
		}
	}
	return best, bestDist >= 0
}

// sanitizeDescription lowers the leading letter and strips a trailing
// full stop so descriptions read naturally inside prompt sentences.
func sanitizeDescription(desc string) string {
	if desc == "" {
		return desc
	}
	runes := []rune(desc)
	runes[0] = unicode.ToLower(runes[0])
	return strings.TrimSuffix(string(runes), ".")
}
