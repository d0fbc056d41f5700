package template

import (
	"context"
	"fmt"
	"sync"
)

// IDGenerator mints ids for new templates.
type IDGenerator interface {
	NextID(ctx context.Context) (int, error)
}

// Observer is implemented by generators that must learn about ids chosen by
// callers, such as the target of an upserting update.
type Observer interface {
	Observe(id int)
}

// Strategy names accepted by NewIDGenerator.
const (
	StrategyCount    = "count"
	StrategySequence = "sequence"
)

// NewIDGenerator returns the generator registered under strategy.
func NewIDGenerator(strategy string, repo Repository) (IDGenerator, error) {
	switch strategy {
	case "", StrategyCount:
		return CountIDs{Repo: repo}, nil
	case StrategySequence:
		return NewSequence(repo), nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", strategy)
	}
}

// CountIDs derives the next id from the current record count plus one.
// Two concurrent creates may observe the same count, and ids are reused once
// records have been deleted.
type CountIDs struct {
	Repo Repository
}

// NextID returns Count()+1.
func (c CountIDs) NextID(ctx context.Context) (int, error) {
	n, err := c.Repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// Sequence hands out strictly increasing ids. It is seeded from the highest
// id present in the repository on first use and advanced past every observed
// id, so ids are never reused within the process lifetime.
type Sequence struct {
	repo Repository

	mu     sync.Mutex
	seeded bool
	last   int
}

var _ Observer = (*Sequence)(nil)

// NewSequence returns a Sequence over repo.
func NewSequence(repo Repository) *Sequence {
	return &Sequence{repo: repo}
}

// NextID returns the next id of the sequence.
func (s *Sequence) NextID(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		all, err := s.repo.Select(ctx, All())
		if err != nil {
			return 0, err
		}
		for _, t := range all {
			if t.ID > s.last {
				s.last = t.ID
			}
		}
		s.seeded = true
	}
	s.last++
	return s.last, nil
}

// Observe advances the sequence past id so a later NextID never returns it.
func (s *Sequence) Observe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = max(s.last, id)
}
