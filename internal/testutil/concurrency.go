package testutil

import (
	"sync"
	"time"

	"github.com/vk/npurunner/internal/recipe"
)

// SleepRunlist is a recipe.Runlist whose every invocation runs
// asynchronously for a fixed duration. It records the start and end time
// of each iteration and fails the iterations listed in Fail.
type SleepRunlist struct {
	Duration time.Duration
	Fail     map[int]error

	mu      sync.Mutex
	done    chan struct{}
	err     error
	records []ExecutionRecord
}

// NewSleepRunlist creates a runlist whose invocations take d.
func NewSleepRunlist(d time.Duration) *SleepRunlist {
	return &SleepRunlist{Duration: d}
}

func (s *SleepRunlist) Kind() recipe.Kind { return recipe.NPU }
func (s *SleepRunlist) Len() int          { return 1 }

func (s *SleepRunlist) Execute(iteration int) error {
	var err error
	if iteration > 0 {
		err = s.Wait()
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()
	go func() {
		start := time.Now()
		time.Sleep(s.Duration)
		s.mu.Lock()
		s.records = append(s.records, ExecutionRecord{Iteration: iteration, Start: start, End: time.Now()})
		s.err = s.Fail[iteration]
		s.mu.Unlock()
		close(done)
	}()
	return err
}

// Wait blocks until the latest invocation finished and reports its error
// once.
func (s *SleepRunlist) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

// Records returns a copy of the recorded invocations.
func (s *SleepRunlist) Records() []ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ExecutionRecord(nil), s.records...)
}
