package scoring

import (
	"math"

	"github.com/ensemblehq/conductor/model"
)

// Aggregate computes the ensemble-level final score from the accumulated
// history and stamps it, together with derived quality metrics, onto state.
// With an empty history both stay unset.
func Aggregate(state *State, config *model.ScoringConfig) {
	if state == nil || len(state.History) == 0 {
		return
	}
	// Aggregation considers each agent's final attempt only; intermediate
	// retries are tracked in the metrics instead.
	final := map[string]Entry{}
	var order []string
	for _, entry := range state.History {
		if _, seen := final[entry.Agent]; !seen {
			order = append(order, entry.Agent)
		}
		final[entry.Agent] = entry
	}

	method := model.AggregationWeightedAverage
	var weights map[string]float64
	if config != nil {
		if config.Method != "" {
			method = config.Method
		}
		weights = config.Weights
	}

	var score float64
	switch method {
	case model.AggregationMinimum:
		score = math.Inf(1)
		for _, agent := range order {
			if s := final[agent].Score; s < score {
				score = s
			}
		}
	case model.AggregationGeometricMean:
		product := 1.0
		for _, agent := range order {
			product *= final[agent].Score
		}
		score = math.Pow(product, 1/float64(len(order)))
	default:
		var sum, weight float64
		for _, agent := range order {
			w := 1.0
			if weights != nil {
				if configured, ok := weights[agent]; ok {
					w = configured
				}
			}
			sum += final[agent].Score * w
			weight += w
		}
		if weight > 0 {
			score = sum / weight
		}
	}

	state.FinalScore = &score
	state.QualityMetrics = deriveMetrics(state)
}

func deriveMetrics(state *State) *QualityMetrics {
	metrics := &QualityMetrics{
		LowestScore:   math.Inf(1),
		HighestScore:  math.Inf(-1),
		TotalAttempts: len(state.History),
	}
	var sum float64
	passed := 0
	for _, entry := range state.History {
		sum += entry.Score
		if entry.Score < metrics.LowestScore {
			metrics.LowestScore = entry.Score
		}
		if entry.Score > metrics.HighestScore {
			metrics.HighestScore = entry.Score
		}
		if entry.Passed {
			passed++
		}
	}
	metrics.AverageScore = sum / float64(len(state.History))
	metrics.PassRate = float64(passed) / float64(len(state.History))
	for _, retries := range state.Retries {
		metrics.TotalRetries += retries
	}
	return metrics
}
