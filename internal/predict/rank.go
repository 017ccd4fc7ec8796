package predict

import (
	"sort"

	"CoinSight/internal/domain/models"
)

// Probability maps a net score and confidence tier onto a bounded
// probability. The formula is a linear heuristic, not a calibrated
// model; reproduce it as-is.
func Probability(netScore float64, tier string) float64 {
	bonus := 0.0
	switch tier {
	case models.TierHigh:
		bonus = 0.10
	case models.TierMedium:
		bonus = 0.05
	}
	p := 0.5 + 0.05*netScore + bonus
	if p < 0.2 {
		return 0.2
	}
	if p > 0.85 {
		return 0.85
	}
	return p
}

// Rank sorts by probability descending with net score as tiebreak and
// truncates to the top n.
func Rank(preds []models.Prediction, n int) []models.Prediction {
	sort.SliceStable(preds, func(i, j int) bool {
		if preds[i].Probability != preds[j].Probability {
			return preds[i].Probability > preds[j].Probability
		}
		return preds[i].NetScore > preds[j].NetScore
	})
	if n > 0 && len(preds) > n {
		preds = preds[:n]
	}
	return preds
}
