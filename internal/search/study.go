package search

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTrialPruned signals that a trial stopped early. It is not a failure.
	ErrTrialPruned = errors.New("trial pruned")
	// ErrNoCompletedTrials is returned by Best when every trial was pruned or failed.
	ErrNoCompletedTrials = errors.New("no completed trials")
)

// TrialState is the lifecycle state of a trial.
type TrialState int

const (
	TrialRunning TrialState = iota
	TrialComplete
	TrialPruned
	TrialFailed
)

func (s TrialState) String() string {
	switch s {
	case TrialRunning:
		return "running"
	case TrialComplete:
		return "complete"
	case TrialPruned:
		return "pruned"
	case TrialFailed:
		return "failed"
	default:
		return fmt.Sprintf("TrialState(%d)", int(s))
	}
}

// Trial is one evaluated configuration. It is immutable once its state leaves Running.
type Trial struct {
	ID           uuid.UUID       `json:"id"`
	Number       int             `json:"number"`
	Params       Params          `json:"params"`
	Value        float64         `json:"value"`
	State        TrialState      `json:"state"`
	Intermediate map[int]float64 `json:"intermediate"`
	Err          string          `json:"error,omitempty"`
	Started      time.Time       `json:"started"`
	Duration     time.Duration   `json:"duration"`
}

func (t *Trial) clone() Trial {
	c := *t
	c.Intermediate = make(map[int]float64, len(t.Intermediate))
	for k, v := range t.Intermediate {
		c.Intermediate[k] = v
	}
	return c
}

// Study holds the trial history of one search. Safe for concurrent use.
type Study struct {
	mu     sync.RWMutex
	trials []*Trial
}

// NewStudy returns an empty study.
func NewStudy() *Study {
	return &Study{}
}

func (s *Study) start(number int, p Params) *Trial {
	t := &Trial{
		ID:           uuid.New(),
		Number:       number,
		Params:       p,
		Value:        math.NaN(),
		State:        TrialRunning,
		Intermediate: make(map[int]float64),
		Started:      time.Now(),
	}
	s.mu.Lock()
	s.trials = append(s.trials, t)
	s.mu.Unlock()
	return t
}

func (s *Study) report(t *Trial, step int, value float64) {
	s.mu.Lock()
	t.Intermediate[step] = value
	s.mu.Unlock()
}

func (s *Study) finish(t *Trial, state TrialState, value float64, err error) Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.State = state
	t.Value = value
	if err != nil {
		t.Err = err.Error()
	}
	t.Duration = time.Since(t.Started)
	return t.clone()
}

// Trials returns a snapshot of every trial ordered by trial number.
func (s *Study) Trials() []Trial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Trial, len(s.trials))
	for i, t := range s.trials {
		out[i] = t.clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Best returns the complete trial with the lowest value.
func (s *Study) Best() (Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Trial
	for _, t := range s.trials {
		if t.State != TrialComplete || math.IsNaN(t.Value) {
			continue
		}
		if best == nil || t.Value < best.Value || (t.Value == best.Value && t.Number < best.Number) {
			best = t
		}
	}
	if best == nil {
		return Trial{}, ErrNoCompletedTrials
	}
	return best.clone(), nil
}

// Count returns how many trials ended in each state.
func (s *Study) Count() map[TrialState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[TrialState]int)
	for _, t := range s.trials {
		out[t.State]++
	}
	return out
}

// valuesAt returns the intermediate values other complete trials reported at step.
func (s *Study) valuesAt(step int, exclude *Trial) (values []float64, completed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trials {
		if t == exclude || t.State != TrialComplete {
			continue
		}
		completed++
		if v, ok := t.Intermediate[step]; ok && !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	return values, completed
}
