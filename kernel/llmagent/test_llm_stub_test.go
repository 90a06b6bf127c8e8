package llmagent

import (
	"context"
	"iter"
	"sync"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// testLLM replays scripted chunks for Stream and answers Complete through
// complete. beforeChunk, when set, runs before chunk i is yielded.
type testLLM struct {
	name        string
	chunks      []*model.Chunk
	streamErr   error
	beforeChunk func(i int)
	complete    func(*model.Request) (*model.Response, error)

	mu       sync.Mutex
	requests []*model.Request
}

func newTestLLM(chunks ...*model.Chunk) *testLLM {
	return &testLLM{name: "test-model", chunks: chunks}
}

func (l *testLLM) Name() string {
	return l.name
}

func (l *testLLM) Stream(ctx context.Context, req *model.Request) iter.Seq2[*model.Chunk, error] {
	l.record(req)
	return func(yield func(*model.Chunk, error) bool) {
		for i, chunk := range l.chunks {
			if l.beforeChunk != nil {
				l.beforeChunk(i)
			}
			if err := ctx.Err(); err != nil {
				yield(nil, model.Canceled(err))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if l.streamErr != nil {
			yield(nil, l.streamErr)
		}
	}
}

func (l *testLLM) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	l.record(req)
	if err := ctx.Err(); err != nil {
		return nil, model.Canceled(err)
	}
	if l.complete == nil {
		return &model.Response{Message: model.Message{Role: model.RoleAssistant, Text: "done"}}, nil
	}
	return l.complete(req)
}

func (l *testLLM) record(req *model.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
}

func (l *testLLM) Requests() []*model.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.Request(nil), l.requests...)
}

func textChunk(s string) *model.Chunk {
	return &model.Chunk{Content: s}
}

func toolDelta(index int, id, name, args string) *model.Chunk {
	return &model.Chunk{ToolCalls: []model.ToolCallDelta{{Index: index, ID: id, Name: name, Arguments: args}}}
}

func finish(reason string) *model.Chunk {
	return &model.Chunk{FinishReason: reason}
}
