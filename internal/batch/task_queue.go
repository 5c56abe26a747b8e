package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task represents a unit of work to be processed
type Task interface {
	Execute(ctx context.Context) (interface{}, error)
	ID() string
}

// TaskResult represents the result of a task execution
type TaskResult struct {
	TaskID  string
	Result  interface{}
	Error   error
	Retries int
}

// TaskQueue runs tasks on a bounded worker pool and reports results in the
// order the tasks were added.
type TaskQueue struct {
	tasks      []Task
	maxWorkers int
	maxRetries int
	retryDelay time.Duration
	mu         sync.Mutex
}

// NewTaskQueue creates a new task queue. Failed tasks are not retried
// unless SetMaxRetries is called.
func NewTaskQueue(maxWorkers int) *TaskQueue {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &TaskQueue{
		maxWorkers: maxWorkers,
		retryDelay: 2 * time.Second,
	}
}

// AddTask adds a task to the queue
func (q *TaskQueue) AddTask(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

// SetMaxRetries sets the maximum number of retries for tasks
func (q *TaskQueue) SetMaxRetries(maxRetries int) {
	q.maxRetries = maxRetries
}

// SetRetryDelay sets the delay between retries
func (q *TaskQueue) SetRetryDelay(delay time.Duration) {
	q.retryDelay = delay
}

type indexedTask struct {
	index int
	task  Task
}

// ProcessAll runs every queued task and returns one result per task, in
// insertion order. A failing task never stops the others.
func (q *TaskQueue) ProcessAll(ctx context.Context) []*TaskResult {
	q.mu.Lock()
	tasks := make([]Task, len(q.tasks))
	copy(tasks, q.tasks)
	q.mu.Unlock()

	results := make([]*TaskResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	taskCh := make(chan indexedTask, len(tasks))

	var wg sync.WaitGroup
	workerCount := q.maxWorkers
	if workerCount > len(tasks) {
		workerCount = len(tasks)
	}

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range taskCh {
				// Each worker writes only its own slots.
				results[it.index] = q.run(ctx, it.task)
			}
		}()
	}

	for i, task := range tasks {
		taskCh <- indexedTask{index: i, task: task}
	}
	close(taskCh)

	wg.Wait()
	return results
}

func (q *TaskQueue) run(ctx context.Context, task Task) *TaskResult {
	var (
		result  interface{}
		err     error
		retries int
	)

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("task cancelled: %w", ctxErr)
			break
		}

		result, err = task.Execute(ctx)
		if err == nil || retries >= q.maxRetries {
			break
		}

		retries++
		log.Debug().Str("task", task.ID()).Int("retry", retries).Err(err).Msg("Retrying task")

		select {
		case <-time.After(q.retryDelay):
		case <-ctx.Done():
		}
	}

	return &TaskResult{TaskID: task.ID(), Result: result, Error: err, Retries: retries}
}

// FuncTask adapts a function to the Task interface
type FuncTask struct {
	id string
	fn func(context.Context) (interface{}, error)
}

func NewFuncTask(id string, fn func(context.Context) (interface{}, error)) *FuncTask {
	return &FuncTask{id: id, fn: fn}
}

func (t *FuncTask) Execute(ctx context.Context) (interface{}, error) {
	return t.fn(ctx)
}

func (t *FuncTask) ID() string {
	return t.id
}
