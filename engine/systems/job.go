package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/prism/engine/core"
)

/**
 * @brief A unit of background work. Run executes on a worker goroutine;
 * OnComplete or OnFailure run on the goroutine calling Update, which is
 * where device resources may be created.
 */
type JobTask struct {
	Name       string
	Run        func() (interface{}, error)
	OnComplete func(result interface{})
	OnFailure  func(err error)
}

type jobResult struct {
	task   JobTask
	result interface{}
	err    error
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu      sync.Mutex
	done    []jobResult
	pending int
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				result, err := job.Run()
				if err != nil {
					core.LogError("job `%s` failed: %s", job.Name, err.Error())
				}
				js.mu.Lock()
				js.done = append(js.done, jobResult{task: job, result: result, err: err})
				js.mu.Unlock()
			}
		}()
	}
}

/**
 * @brief Shuts the job system down after the queued jobs ran. Completions
 * not yet collected by Update are dropped.
 */
func (js *JobSystem) Shutdown() error {
	close(js.jobQueue)
	js.wg.Wait()
	return nil
}

/**
 * @brief Runs the callbacks of finished jobs. Should happen once an update
 * cycle, on the render goroutine.
 */
func (js *JobSystem) Update() {
	js.mu.Lock()
	done := js.done
	js.done = nil
	js.pending -= len(done)
	js.mu.Unlock()

	for _, d := range done {
		if d.err != nil {
			if d.task.OnFailure != nil {
				d.task.OnFailure(d.err)
			}
			continue
		}
		if d.task.OnComplete != nil {
			d.task.OnComplete(d.result)
		}
	}
}

// Pending returns the number of submitted jobs whose callbacks did not run
// yet.
func (js *JobSystem) Pending() int {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.pending
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) {
	js.mu.Lock()
	js.pending++
	js.mu.Unlock()
	js.jobQueue <- jt
}
