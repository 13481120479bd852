package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/quality-agent/backend/internal/llm"
)

type structuredReply struct {
	payload interface{}
	err     error
}

type freeReply struct {
	text string
	err  error
}

// fakeProvider serves canned replies in call order and records prompts.
type fakeProvider struct {
	mu         sync.Mutex
	structured []structuredReply
	free       []freeReply

	structuredCalls int
	freeCalls       int
	prompts         [][]llm.Message
}

func (f *fakeProvider) Complete(_ context.Context, msgs []llm.Message, _ float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.freeCalls++
	f.prompts = append(f.prompts, msgs)

	if len(f.free) == 0 {
		return "", nil
	}
	reply := f.free[0]
	f.free = f.free[1:]
	return reply.text, reply.err
}

func (f *fakeProvider) CompleteStructured(_ context.Context, msgs []llm.Message, _ float32, out interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.structuredCalls++
	f.prompts = append(f.prompts, msgs)

	if len(f.structured) == 0 {
		return &llm.ProviderError{Op: "complete_structured", Err: llm.ErrEmptyCompletion}
	}
	reply := f.structured[0]
	f.structured = f.structured[1:]
	if reply.err != nil {
		return reply.err
	}

	data, err := json.Marshal(reply.payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// fakeExecutor returns one canned result set for every query and records
// what was executed.
type fakeExecutor struct {
	mu       sync.Mutex
	columns  []string
	rows     []map[string]interface{}
	err      error
	executed []string
}

func (f *fakeExecutor) Execute(_ context.Context, query string) ([]string, []map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.executed = append(f.executed, query)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.columns, f.rows, nil
}

func (f *fakeExecutor) executedQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.executed))
	copy(out, f.executed)
	return out
}
