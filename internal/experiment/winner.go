package experiment

import (
	"sort"

	"github.com/splitlab/splitlab/internal/store"
)

// autoWinner derives a completed experiment's winner from its primary goal
// metric. Retention and "other" goals have no automatic winner. The top
// variant wins only with a strictly positive value; the stable sort means
// ties go to the variant declared first.
func autoWinner(primary store.Goal, variants []store.Variant, totals []store.VariantTotals) *string {
	byVariant := make(map[string]store.VariantTotals, len(totals))
	for _, t := range totals {
		byVariant[t.Variant] = t
	}

	type ranked struct {
		name  string
		score float64
	}
	scores := make([]ranked, 0, len(variants))
	for _, v := range variants {
		t := byVariant[v.Name]
		var score float64
		switch primary {
		case store.GoalConversion:
			if t.Impressions > 0 {
				score = float64(t.Conversions) / float64(t.Impressions)
			}
		case store.GoalRevenue:
			score = t.Revenue
		case store.GoalEngagement:
			score = float64(t.Engagements)
		default:
			return nil
		}
		scores = append(scores, ranked{name: v.Name, score: score})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if len(scores) == 0 || scores[0].score <= 0 {
		return nil
	}
	name := scores[0].name
	return &name
}
