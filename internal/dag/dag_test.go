package dag

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
)

func TestTopologicalSort(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		edges [][2]string
		nodes []string
		want  []string
	}{
		{"empty", nil, nil, nil},
		{"single node", nil, []string{"A"}, []string{"A"}},
		{"linear chain", [][2]string{{"A", "B"}, {"B", "C"}}, nil, []string{"A", "B", "C"}},
		{"diamond", [][2]string{{"A", "B"}, {"A", "C"}, {"B", "D"}, {"C", "D"}}, nil, []string{"A", "B", "C", "D"}},
		{"disconnected keeps insertion order", nil, []string{"X", "A", "M"}, []string{"X", "A", "M"}},
		{"duplicate edges", [][2]string{{"A", "B"}, {"A", "B"}}, nil, []string{"A", "B"}},
		{"self edge ignored", [][2]string{{"A", "A"}}, nil, []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New[string]()
			for _, n := range tt.nodes {
				g.AddNode(n)
			}
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}
			got, err := g.TopologicalSort()
			if err != nil {
				t.Fatalf("TopologicalSort() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("TopologicalSort() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCycles(t *testing.T) {
	t.Parallel()
	g := New[int64]()
	g.AddEdge(0, 1)
	g.AddEdge(1, 2)
	g.AddEdge(2, 1)
	g.AddEdge(2, 3)

	_, err := g.TopologicalSort()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("TopologicalSort() error = %v, want *CycleError", err)
	}
	if !slices.Equal(cycleErr.Cycle, []string{"1", "2", "3"}) {
		t.Errorf("Cycle = %v, want [1 2 3]", cycleErr.Cycle)
	}

	if got, want := g.Order(), []int64{0, 1, 2, 3}; !slices.Equal(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
}

func TestRunRespectsEdges(t *testing.T) {
	t.Parallel()
	g := New[string]()
	g.AddEdge("base", "left")
	g.AddEdge("base", "right")
	g.AddEdge("left", "top")
	g.AddEdge("right", "top")
	g.AddNode("lonely")

	var mu sync.Mutex
	var seen []string
	err := g.Run(context.Background(), 4, func(_ context.Context, k string) error {
		mu.Lock()
		seen = append(seen, k)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	idx := func(k string) int { return slices.Index(seen, k) }
	if len(seen) != 5 {
		t.Fatalf("ran %v, want 5 nodes", seen)
	}
	if idx("base") > idx("left") || idx("base") > idx("right") {
		t.Errorf("base ran after a dependent: %v", seen)
	}
	if idx("top") < idx("left") || idx("top") < idx("right") {
		t.Errorf("top ran before its dependencies: %v", seen)
	}
}

func TestRunLimitsWorkersAndJoinsErrors(t *testing.T) {
	t.Parallel()
	g := New[int]()
	for i := range 10 {
		g.AddNode(i)
	}
	var inFlight, peak atomic.Int32
	errBoom := errors.New("boom")
	err := g.Run(context.Background(), 2, func(_ context.Context, k int) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if k%5 == 0 {
			return errBoom
		}
		return nil
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("Run() error = %v, want errBoom", err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	g := New[int]()
	g.AddEdge(1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	err := g.Run(ctx, 1, func(context.Context, int) error {
		calls.Add(1)
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
