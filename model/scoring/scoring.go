package scoring

import (
	"encoding/json"
	"time"

	"github.com/ensemblehq/conductor/internal/clock"
)

// Result is a single evaluation verdict for one step attempt.
type Result struct {
	Score     float64            `json:"score"`
	Passed    bool               `json:"passed"`
	Feedback  string             `json:"feedback,omitempty"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// Entry is one row of an execution's score history.
type Entry struct {
	Agent     string             `json:"agent"`
	Score     float64            `json:"score"`
	Passed    bool               `json:"passed"`
	Feedback  string             `json:"feedback,omitempty"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
	Attempt   int                `json:"attempt"`
	Timestamp time.Time          `json:"timestamp"`
}

// State accumulates scoring data across an execution: the ordered score
// history, per-agent retry counters and, once all steps finish, the
// aggregated final score with derived quality metrics.
type State struct {
	History        []Entry         `json:"scoreHistory"`
	Retries        map[string]int  `json:"retryCount"`
	FinalScore     *float64        `json:"finalScore,omitempty"`
	QualityMetrics *QualityMetrics `json:"qualityMetrics,omitempty"`
}

// QualityMetrics summarises the score history once an execution completes.
type QualityMetrics struct {
	AverageScore  float64 `json:"averageScore"`
	LowestScore   float64 `json:"lowestScore"`
	HighestScore  float64 `json:"highestScore"`
	PassRate      float64 `json:"passRate"`
	TotalAttempts int     `json:"totalAttempts"`
	TotalRetries  int     `json:"totalRetries"`
}

// NewState creates an empty scoring state.
func NewState() *State {
	return &State{Retries: map[string]int{}}
}

// Record appends an attempt verdict to the history and, for retry attempts,
// bumps the agent's retry counter.
func (s *State) Record(agent string, attempt int, result *Result) {
	s.History = append(s.History, Entry{
		Agent:     agent,
		Score:     result.Score,
		Passed:    result.Passed,
		Feedback:  result.Feedback,
		Breakdown: result.Breakdown,
		Attempt:   attempt,
		Timestamp: clock.Now(),
	})
	if attempt > 1 {
		if s.Retries == nil {
			s.Retries = map[string]int{}
		}
		s.Retries[agent]++
	}
}

// View renders the state as plain maps and slices keyed by the wire names
// (scoreHistory, retryCount, ...), the shape template path resolution
// traverses.
func (s *State) View() map[string]interface{} {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var view map[string]interface{}
	if err := json.Unmarshal(data, &view); err != nil {
		return nil
	}
	return view
}

// Clone returns a deep copy, used when snapshotting a suspended execution.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	ret := &State{
		History: make([]Entry, len(s.History)),
		Retries: make(map[string]int, len(s.Retries)),
	}
	copy(ret.History, s.History)
	for k, v := range s.Retries {
		ret.Retries[k] = v
	}
	if s.FinalScore != nil {
		score := *s.FinalScore
		ret.FinalScore = &score
	}
	if s.QualityMetrics != nil {
		metrics := *s.QualityMetrics
		ret.QualityMetrics = &metrics
	}
	return ret
}
