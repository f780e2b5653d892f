// Package market holds the pre-game batch logic: the round-by-round price
// trend generator and the distribution of round actions to players.
package market

import (
	"math"
	"math/rand"

	"github.com/hansol-club/stockfest/internal/models"
)

type direction int

const (
	normal direction = iota
	up
	down
)

// Trend bounds. Durations are drawn from [minDuration, maxDuration] and
// magnitudes from [minMagnitude, minMagnitude+magnitudeSpan).
const (
	minDuration   = 2
	maxDuration   = 3
	minMagnitude  = 0.10
	magnitudeSpan = 0.15
	maxVariation  = 0.1
)

// trendState is the per-stock state machine: a stock is either trending
// (remainingRounds > 0) or moving by independent per-round variation.
type trendState struct {
	direction       direction
	remainingRounds int
	magnitude       float64
}

// Generator produces one RoundAction per (stock, round) pair. It is pure
// in-memory arithmetic; persisting the emissions is the caller's job.
type Generator struct {
	oddProb float64
	rng     *rand.Rand
}

// NewGenerator creates a generator. oddProb is the per-round probability of a
// stock entering a multi-round trend; rng is injected so a fixed seed replays
// the same trajectory.
func NewGenerator(oddProb float64, rng *rand.Rand) *Generator {
	return &Generator{oddProb: oddProb, rng: rng}
}

// Actions walks every stock through every round in order and emits the
// resulting price trajectory. Each stock's walk starts from its seed price
// and never reads any other stock's state; an emitted price is always the
// cumulative sum of the seed price and all prior diffs.
func (g *Generator) Actions(stocks []models.Stock, rounds []models.RoundInfo) []models.RoundAction {
	actions := make([]models.RoundAction, 0, len(stocks)*len(rounds))

	for _, stock := range stocks {
		trend := trendState{}
		price := stock.Price

		for _, round := range rounds {
			var diff int64

			if trend.remainingRounds > 0 {
				// Trend diffs are always relative to the seed price, not the
				// running price, so a trend moves linearly rather than
				// compounding.
				diff = trendDiff(stock.Price, trend.magnitude, trend.direction)
				trend.remainingRounds--
				if trend.remainingRounds == 0 {
					trend.direction = normal
					trend.magnitude = 0
				}
			} else if g.rng.Float64() < g.oddProb {
				if g.rng.Float64() < 0.5 {
					trend.direction = up
				} else {
					trend.direction = down
				}
				trend.remainingRounds = g.rng.Intn(maxDuration-minDuration+1) + minDuration
				trend.magnitude = g.rng.Float64()*magnitudeSpan + minMagnitude
				// The entry round emits a trend diff without consuming a
				// remaining round, so a drawn duration of k spans k+1 rounds.
				diff = trendDiff(stock.Price, trend.magnitude, trend.direction)
			} else {
				variation := g.rng.Float64() * maxVariation
				sign := 1.0
				if g.rng.Float64() < 0.5 {
					sign = -1.0
				}
				diff = int64(math.Floor(float64(price) * variation * sign))
			}

			price += diff
			actions = append(actions, models.RoundAction{
				StockID:     stock.ID,
				RoundInfoID: round.ID,
				Price:       price,
				Diff:        diff,
			})
		}
	}
	return actions
}

// trendDiff floors the magnitude move before applying the sign, so up and
// down trends of equal magnitude are symmetric.
func trendDiff(basePrice int64, magnitude float64, dir direction) int64 {
	if dir == normal {
		return 0
	}
	change := int64(math.Floor(float64(basePrice) * magnitude))
	if dir == up {
		return change
	}
	return -change
}

// actionsPerUser caps how many round actions the pre-game distribution hands
// to each player.
const actionsPerUser = 5

// DistributeActions shuffles the actions and assigns up to actionsPerUser
// unassigned actions to each user, returning action IDs keyed by user ID.
// Already-assigned actions are skipped. This is display bookkeeping for the
// player mission cards; settlement never reads the assignment.
func DistributeActions(actions []models.RoundAction, users []models.User, rng *rand.Rand) map[string][]string {
	shuffled := make([]models.RoundAction, len(actions))
	copy(shuffled, actions)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	assigned := make(map[string][]string, len(users))
	idx := 0
	for _, user := range users {
		for count := 0; count < actionsPerUser && idx < len(shuffled); idx++ {
			if shuffled[idx].UserID != nil {
				continue
			}
			assigned[user.ID] = append(assigned[user.ID], shuffled[idx].ID)
			count++
		}
	}
	return assigned
}
