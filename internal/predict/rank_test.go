package predict

import (
	"testing"

	"CoinSight/internal/domain/models"
)

func TestProbabilityFormula(t *testing.T) {
	cases := []struct {
		net  float64
		tier string
		want float64
	}{
		{2, models.TierMedium, 0.65},  // 0.5 + 0.1 + 0.05
		{4, models.TierHigh, 0.80},    // 0.5 + 0.2 + 0.10
		{0, models.TierLow, 0.5},
		{100, models.TierHigh, 0.85},  // clamped high
		{-100, models.TierLow, 0.2},   // clamped low
	}
	for _, tc := range cases {
		got := Probability(tc.net, tc.tier)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("Probability(%v, %q) = %v, want %v", tc.net, tc.tier, got, tc.want)
		}
	}
}

func TestRankOrderAndTruncate(t *testing.T) {
	preds := []models.Prediction{
		{Asset: "a", Probability: 0.6, NetScore: 1},
		{Asset: "b", Probability: 0.8, NetScore: 2},
		{Asset: "c", Probability: 0.8, NetScore: 5}, // ties on probability, wins on net score
		{Asset: "d", Probability: 0.7, NetScore: 9},
	}
	ranked := Rank(preds, 3)
	if len(ranked) != 3 {
		t.Fatalf("got %d, want 3", len(ranked))
	}
	want := []string{"c", "b", "d"}
	for i, w := range want {
		if ranked[i].Asset != w {
			t.Fatalf("position %d = %q, want %q", i, ranked[i].Asset, w)
		}
	}
}

func TestRankZeroLimitKeepsAll(t *testing.T) {
	preds := []models.Prediction{{Asset: "a"}, {Asset: "b"}}
	if got := Rank(preds, 0); len(got) != 2 {
		t.Fatalf("got %d, want all", len(got))
	}
}
