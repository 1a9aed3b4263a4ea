package systems

import (
	"errors"
	"testing"
	"time"
)

func waitForJobs(t *testing.T, js *JobSystem) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for js.Pending() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("jobs did not finish")
		}
		js.Update()
		time.Sleep(time.Millisecond)
	}
}

func TestJobCallbacksRunOnUpdate(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer js.Shutdown()

	var sum int
	var failures []error
	for i := 1; i <= 3; i++ {
		i := i
		js.Submit(JobTask{
			Name:       "add",
			Run:        func() (interface{}, error) { return i, nil },
			OnComplete: func(r interface{}) { sum += r.(int) },
		})
	}
	js.Submit(JobTask{
		Name:      "fail",
		Run:       func() (interface{}, error) { return nil, errors.New("boom") },
		OnFailure: func(err error) { failures = append(failures, err) },
	})
	waitForJobs(t, js)

	if sum != 6 {
		t.Errorf("have sum %d, want 6", sum)
	}
	if len(failures) != 1 {
		t.Errorf("have %d failures, want 1", len(failures))
	}
}

func TestNewJobSystemValidates(t *testing.T) {
	if _, err := NewJobSystem(0, 1); !errors.Is(err, ErrNoWorkers) {
		t.Errorf("have %v, want %v", err, ErrNoWorkers)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Errorf("have %v, want %v", err, ErrNegativeChannelSize)
	}
}
