package oracle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/crudcrawl/internal/model"
)

type classifierFunc func(ctx context.Context, a Action) (model.ResourceOperation, error)

func (f classifierFunc) Classify(ctx context.Context, a Action) (model.ResourceOperation, error) {
	return f(ctx, a)
}

var errClassify = errors.New("classify failed")

func TestPool(t *testing.T) {
	t.Parallel()

	t.Run("classifies and drains results", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int64
		p := NewPool(classifierFunc(func(_ context.Context, a Action) (model.ResourceOperation, error) {
			calls.Add(1)
			switch a.Target {
			case "/fail":
				return model.ResourceOperation{}, errClassify
			case "/unknown":
				return model.ResourceOperation{}, nil
			}
			return model.ResourceOperation{Resource: "order", Operation: "view", CRUDType: model.CRUDRead}, nil
		}), WithConcurrency(1), WithPoolLogger(discard()))

		ctx := context.Background()
		jobs := []Job{
			{Edge: 0, Action: Action{Kind: model.ActionGet, Target: "/orders"}},
			{Edge: 1, Action: Action{Kind: model.ActionGet, Target: "/orders"}},
			{Edge: 2, Action: Action{Kind: model.ActionGet, Target: "/fail"}},
			{Edge: 3, Action: Action{Kind: model.ActionGet, Target: "/unknown"}},
		}
		for _, j := range jobs {
			if err := p.Submit(ctx, j); err != nil {
				t.Fatalf("failed to submit: %v", err)
			}
		}
		if p.Pending() != len(jobs) {
			t.Errorf("expected %d pending, got %d", len(jobs), p.Pending())
		}
		p.Close()

		if err := p.Run(ctx); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		first := p.Drain(1)
		if len(first) != 1 {
			t.Fatalf("expected 1 result, got %d", len(first))
		}
		rest := p.Drain(0)
		if len(rest) != 3 {
			t.Fatalf("expected 3 remaining results, got %d", len(rest))
		}
		if p.Pending() != 0 {
			t.Errorf("expected nothing pending, got %d", p.Pending())
		}

		byEdge := map[int]Result{}
		for _, r := range append(first, rest...) {
			byEdge[r.Edge] = r
		}
		if byEdge[1].Operation.Resource != "order" {
			t.Errorf("expected duplicate action to be classified, got %+v", byEdge[1])
		}
		if !errors.Is(byEdge[2].Err, errClassify) || !byEdge[2].Operation.IsEmpty() {
			t.Errorf("expected error result for edge 2, got %+v", byEdge[2])
		}
		if byEdge[3].Err != nil || !byEdge[3].Operation.IsEmpty() {
			t.Errorf("expected empty result for edge 3, got %+v", byEdge[3])
		}
		if calls.Load() != 3 {
			t.Errorf("expected identical actions to be classified once, got %d calls", calls.Load())
		}
	})

	t.Run("submit after close", func(t *testing.T) {
		t.Parallel()

		p := NewPool(NewKeywordClassifier(nil))
		p.Close()
		p.Close()
		if err := p.Submit(context.Background(), Job{}); !errors.Is(err, ErrPoolClosed) {
			t.Errorf("expected ErrPoolClosed, got %v", err)
		}
	})

	t.Run("submit respects context on full queue", func(t *testing.T) {
		t.Parallel()

		p := NewPool(NewKeywordClassifier(nil), WithQueueSize(1))
		ctx := context.Background()
		if err := p.Submit(ctx, Job{Edge: 0}); err != nil {
			t.Fatalf("failed to submit: %v", err)
		}

		timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if err := p.Submit(timeout, Job{Edge: 1}); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if p.Pending() != 1 {
			t.Errorf("expected 1 pending, got %d", p.Pending())
		}
	})

	t.Run("run stops on cancel", func(t *testing.T) {
		t.Parallel()

		p := NewPool(NewKeywordClassifier(nil))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.Run(ctx) }()
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("run did not stop")
		}
	})
}
