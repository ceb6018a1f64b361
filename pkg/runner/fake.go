package runner

import (
	"context"
	"sync"
)

// Call is one invocation recorded by Fake
type Call struct {
	Name string
	Args []string
}

// Line returns the invocation as a single command line
func (c Call) Line() string {
	return Format(c.Name, c.Args...)
}

// Handler answers a recorded invocation
type Handler func(call Call) (Result, error)

// Fake is a scripted Runner that records every call. Commands without a
// registered response succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string][]Result
	handler   Handler
}

// NewFake creates an empty fake runner
func NewFake() *Fake {
	return &Fake{
		responses: make(map[string][]Result),
	}
}

// Respond queues results for an exact command line. Queued results are
// consumed in order; the last one repeats.
func (f *Fake) Respond(line string, results ...Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = append(f.responses[line], results...)
	return f
}

// Handle installs a fallback for lines without a queued response
func (f *Fake) Handle(h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return f
}

// Run records the call and returns the scripted result
func (f *Fake) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}

	call := Call{Name: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	queued := f.responses[call.Line()]
	handler := f.handler
	if len(queued) > 0 {
		res := queued[0]
		if len(queued) > 1 {
			f.responses[call.Line()] = queued[1:]
		}
		f.mu.Unlock()
		return res, nil
	}
	f.mu.Unlock()

	if handler != nil {
		return handler(call)
	}
	return Result{}, nil
}

// Calls returns a copy of the recorded invocations
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the recorded invocations as command lines
func (f *Fake) Lines() []string {
	calls := f.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.Line())
	}
	return lines
}

// Reset forgets recorded calls but keeps scripted responses
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
