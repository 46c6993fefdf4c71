package navigation

import (
	"context"
	"testing"
)

func newTestScheduler(g *DependencyGraph, opts ...SchedulerOption) *Scheduler {
	return NewScheduler(g, opts...)
}

func TestSchedulerSingleCreateNode(t *testing.T) {
	t.Parallel()

	g := newTestGraph(nil)
	s := newTestScheduler(g)
	n := Node{Action: "form", Resource: "order", Operation: OpCreate, Subtype: OpCreate, Index: 5}
	g.AddNode(n)

	if got := s.PickAndRun(context.Background()); got != 5 {
		t.Fatalf("PickAndRun() = %d, want 5", got)
	}
	s.Feedback(n, true)

	if !g.Cluster("order", OpCreate).IsEmpty() {
		t.Error("expected order/create to be empty")
	}
	if got := s.PickAndRun(context.Background()); got != NoAction {
		t.Errorf("PickAndRun() = %d, want NoAction", got)
	}
}

func TestSchedulerIndependentResources(t *testing.T) {
	t.Parallel()

	seen := make(map[int]bool)
	for seed := uint64(1); seed <= 50; seed++ {
		g := newTestGraph(nil, WithRand(NewRand(seed)))
		s := newTestScheduler(g)
		g.AddNode(formNode("comment", OpCreate, 1))
		g.AddNode(formNode("post", OpCreate, 2))

		first := s.PickAndRun(context.Background())
		second := s.PickAndRun(context.Background())
		if first+second != 3 || first == second {
			t.Fatalf("seed %d: expected {1, 2}, got %d and %d", seed, first, second)
		}
		if got := s.PickAndRun(context.Background()); got != NoAction {
			t.Fatalf("seed %d: expected NoAction after both picks, got %d", seed, got)
		}
		seen[first] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("expected both resources to be picked first across seeds, saw %v", seen)
	}
}

func TestSchedulerRespectsChainOrder(t *testing.T) {
	t.Parallel()

	g := newTestGraph(nil)
	s := newTestScheduler(g)
	g.AddNode(formNode("post", OpUpdate, 3))
	g.AddNode(formNode("post", OpRead, 2))
	g.AddNode(formNode("post", OpCreate, 1))

	for _, want := range []int{1, 2, 3} {
		if got := s.PickAndRun(context.Background()); got != want {
			t.Fatalf("PickAndRun() = %d, want %d", got, want)
		}
	}
}

func TestSchedulerPrefersLeastFailed(t *testing.T) {
	t.Parallel()

	g := newTestGraph(nil)
	s := newTestScheduler(g)
	tried := Node{Action: "form", Resource: "tag", Operation: OpCreate, Subtype: "create tag", Index: 9, FailedCount: 3}
	g.AddNode(tried)
	g.AddNode(Node{Action: "get", Resource: "tag", Operation: OpCreate, Subtype: "new tag", Index: 1})
	g.AddNode(Node{Action: "form", Resource: "tag", Operation: OpCreate, Subtype: "quick add", Index: 2})

	first := s.PickAndRun(context.Background())
	second := s.PickAndRun(context.Background())
	if first == 9 || second == 9 {
		t.Fatalf("node with failures picked before fresh nodes: %d, %d", first, second)
	}
	if got := s.PickAndRun(context.Background()); got != 9 {
		t.Errorf("PickAndRun() = %d, want 9", got)
	}
}

func TestSchedulerFeedback(t *testing.T) {
	t.Parallel()

	t.Run("failure past the limit drops the node", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(nil)
		s := newTestScheduler(g)
		n := formNode("item", OpCreate, 1)
		g.AddNode(n)
		c := g.Cluster("item", OpCreate)

		for range DefaultMaxFailedCount {
			s.Feedback(n, false)
		}
		if c.Len() != 1 || c.Nodes()[0].FailedCount != DefaultMaxFailedCount {
			t.Fatalf("expected node to survive %d failures, got %v", DefaultMaxFailedCount, c.Nodes())
		}
		s.Feedback(n, false)
		if !c.IsEmpty() {
			t.Errorf("expected node to be dropped after 11 failures, got %v", c.Nodes())
		}
	})

	t.Run("success retires every node with the same key", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(nil)
		s := newTestScheduler(g)
		for i := range 3 {
			g.AddNode(formNode("item", OpCreate, i))
		}
		other := Node{Action: "form", Resource: "item", Operation: OpCreate, Subtype: "import items", Index: 7}
		g.AddNode(other)

		s.Feedback(formNode("item", OpCreate, 99), true)

		got := g.Cluster("item", OpCreate).Nodes()
		if len(got) != 1 || got[0].Index != 7 {
			t.Errorf("expected only index 7 to remain, got %v", got)
		}
	})

	t.Run("failure penalizes every node with the same key", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(nil)
		s := newTestScheduler(g)
		g.AddNode(formNode("item", OpCreate, 1))
		g.AddNode(formNode("item", OpCreate, 2))
		g.AddNode(Node{Action: "get", Resource: "item", Operation: OpCreate, Subtype: OpCreate, Index: 3})

		s.Feedback(formNode("item", OpCreate, 1), false)

		for _, n := range g.Cluster("item", OpCreate).Nodes() {
			want := 1
			if n.Action == "get" {
				want = 0
			}
			if n.FailedCount != want {
				t.Errorf("node %d: failed count %d, want %d", n.Index, n.FailedCount, want)
			}
		}
	})

	t.Run("unknown cluster is ignored", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(nil)
		s := newTestScheduler(g)
		s.Feedback(formNode("ghost", OpCreate, 1), true)
		s.Feedback(formNode("ghost", OpCreate, 1), false)
		if len(g.Clusters()) != 0 {
			t.Error("feedback must not create clusters")
		}
	})
}

func TestSchedulerThrottlesUngatedDelete(t *testing.T) {
	t.Parallel()

	g := newTestGraph(nil)
	s := newTestScheduler(g)
	n := formNode("account", OpDelete, 4)
	g.AddNode(n)

	const calls = 1000
	picked := 0
	for range calls {
		got := s.PickAndRun(context.Background())
		switch got {
		case 4:
			picked++
			g.AddNode(n)
		case NoAction:
		default:
			t.Fatalf("unexpected index %d", got)
		}
	}

	// 11 of the 101 possible draws pass the gate.
	if picked < 60 || picked > 170 {
		t.Errorf("delete picked %d of %d times, want roughly 10%%", picked, calls)
	}
}

func TestSchedulerDeleteGateBounds(t *testing.T) {
	t.Parallel()

	t.Run("gate 0 always passes", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(nil)
		s := newTestScheduler(g, WithDeleteGate(0))
		for i := range 20 {
			g.AddNode(formNode("account", OpDelete, i))
			if got := s.PickAndRun(context.Background()); got != i {
				t.Fatalf("PickAndRun() = %d, want %d", got, i)
			}
		}
	})

	t.Run("gate 101 never passes", func(t *testing.T) {
		t.Parallel()
		g := newTestGraph(nil)
		s := newTestScheduler(g, WithDeleteGate(101))
		g.AddNode(formNode("account", OpDelete, 1))
		for range 50 {
			if got := s.PickAndRun(context.Background()); got != NoAction {
				t.Fatalf("PickAndRun() = %d, want NoAction", got)
			}
		}
	})
}

func TestSchedulerGatedDeleteWaitsForChild(t *testing.T) {
	t.Parallel()

	oracle := &countingInferer{related: map[[2]string]bool{{"post", "comment"}: true}}
	g := newTestGraph(oracle)
	s := newTestScheduler(g, WithDeleteGate(0))
	g.AddNode(formNode("post", OpDelete, 1))
	g.AddNode(formNode("comment", OpDelete, 2))

	// Linking happens the first time post/delete is considered, after which
	// post/delete is no longer eligible until comment/delete is drained.
	g.HasPredecessorForDelete(context.Background(), g.Cluster("post", OpDelete))

	if got := s.PickAndRun(context.Background()); got != 2 {
		t.Fatalf("PickAndRun() = %d, want 2", got)
	}
	if got := s.PickAndRun(context.Background()); got != 1 {
		t.Fatalf("PickAndRun() = %d, want 1", got)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	g := newTestGraph(nil)
	g.AddNode(formNode("order", OpCreate, 1))
	snap := g.Snapshot()
	if len(snap) != len(Operations) {
		t.Fatalf("expected %d snapshots, got %d", len(Operations), len(snap))
	}
	if snap[0].Operation != OpCreate || len(snap[0].Pending) != 1 || !snap[0].Ready {
		t.Errorf("unexpected create snapshot: %+v", snap[0])
	}
	if snap[1].Ready {
		t.Error("expected order/read to be reported as not ready")
	}
	if len(snap[1].Predecessors) != 1 || snap[1].Predecessors[0] != "order/create" {
		t.Errorf("unexpected predecessors: %v", snap[1].Predecessors)
	}
}
