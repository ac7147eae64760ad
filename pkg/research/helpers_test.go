package research

import (
	"context"
	"sync"

	"github.com/seekerhq/seeker/pkg/agent"
	"github.com/seekerhq/seeker/pkg/llm"
)

// scriptClient returns scripted responses in order, repeating the last
// once exhausted, and records every request for prompt assertions.
type scriptClient struct {
	mu        sync.Mutex
	responses []string
	requests  []*llm.Request
}

func (c *scriptClient) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.requests)
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.requests = append(c.requests, req)
	return &llm.Response{Content: c.responses[idx]}, nil
}

func (c *scriptClient) Stream(_ context.Context, _ *llm.Request) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (c *scriptClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// fakeRunner synthesizes one result per task without running an agent.
type fakeRunner struct {
	mu    sync.Mutex
	fn    func(task agent.WorkerTask) *agent.WorkerResult
	tasks []agent.WorkerTask
}

func (r *fakeRunner) SpawnParallel(_ context.Context, tasks []agent.WorkerTask, _ agent.RunnerConfig, onResult func(*agent.WorkerResult)) []*agent.WorkerResult {
	r.mu.Lock()
	r.tasks = append(r.tasks, tasks...)
	r.mu.Unlock()
	var out []*agent.WorkerResult
	for _, t := range tasks {
		res := r.fn(t)
		if onResult != nil {
			onResult(res)
		}
		out = append(out, res)
	}
	return out
}

// citingWorker returns a success result citing one URL derived from the
// task ID.
func citingWorker(task agent.WorkerTask) *agent.WorkerResult {
	return &agent.WorkerResult{
		TaskID:         task.ID,
		Output:         "notes for " + task.ID,
		Citations:      []string{"https://example.com/" + task.ID},
		WebSearchCalls: 1,
		Success:        true,
	}
}
