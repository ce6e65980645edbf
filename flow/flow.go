// Package flow builds and materializes deferred computation graphs. A graph is
// a pure description of typed nodes and their dependency edges; nothing runs
// until Materialize, which executes independent nodes in parallel. Side-effect
// nodes can be joined into a result's dependency chain so they are guaranteed
// to run if and when the result is produced, without their values becoming
// data dependencies.
package flow

import (
	"context"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization of a graph's
// nodes. This might be useful to set in tests where too much parallelism
// actually slows tests down in aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

// Graph is a set of deferred computations wired by dependency edges. Nodes are
// added at construction time; Materialize evaluates them. Construction is not
// safe for concurrent use; a built graph may be materialized once.
type Graph struct {
	nodes []*node
}

// NewGraph returns an empty computation graph.
func NewGraph() *Graph {
	return &Graph{}
}

type node struct {
	name string
	deps []*node
	run  func(ctx context.Context) error
	done chan struct{}
	ran  bool
}

// Handle is any typed future viewed as a graph node, used to express
// dependency edges without caring about the value type.
type Handle interface {
	graphNode() *node
}

// Future is the placeholder for a deferred computation's value. Value is only
// meaningful after the graph has materialized successfully.
type Future[T any] struct {
	n   *node
	val T
}

func (f *Future[T]) graphNode() *node { return f.n }

// Value returns the computed value. It is the zero value until the node has run.
func (f *Future[T]) Value() T { return f.val }

// Defer adds a deferred computation to the graph. The computation may read the
// Value of any future listed in after; those futures are guaranteed to have
// run first. Nothing executes until Materialize.
func Defer[T any](g *Graph, name string, after []Handle, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{}
	n := &node{
		name: name,
		deps: depNodes(after),
		done: make(chan struct{}),
	}
	n.run = func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		f.val = v
		return nil
	}
	f.n = n
	g.nodes = append(g.nodes, n)
	return f
}

// Immediate wraps an already-known value as a future so it can feed deferred
// computations.
func Immediate[T any](g *Graph, name string, v T) *Future[T] {
	return Defer(g, name, nil, func(ctx context.Context) (T, error) {
		return v, nil
	})
}

// After returns a future carrying main's value that completes only once every
// side handle has also completed. The side results are discarded; the join
// exists purely for ordering, so side effects are forced to happen before
// anything downstream of the returned future.
func After[T any](g *Graph, name string, main *Future[T], side ...Handle) *Future[T] {
	deps := make([]Handle, 0, len(side)+1)
	deps = append(deps, main)
	deps = append(deps, side...)
	return Defer(g, name, deps, func(ctx context.Context) (T, error) {
		return main.Value(), nil
	})
}

// Materialize runs every node the targets transitively depend on, in
// dependency order, with independent nodes running concurrently. It blocks
// until all needed nodes finish. The first node error cancels the remaining
// work and is returned wrapped with the failing node's name; no partial
// result should be read after a failed materialization.
func (g *Graph) Materialize(ctx context.Context, targets ...Handle) error {
	reachable := collectReachable(targets)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, ParallelFactor)

	for _, n := range reachable {
		if n.ran {
			continue
		}
		n.ran = true
		wg.Add(1)
		nCopy := n
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			n := nCopy
			defer close(n.done)
			for _, dep := range n.deps {
				select {
				case <-dep.done:
				case <-ctx.Done():
					return
				}
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			if err := n.run(ctx); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "stage %q failed", n.name)
				}
				errMu.Unlock()
				cancel()
			}
		})
	}
	wg.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// Resolve materializes the graph up to the given future and returns its value.
func Resolve[T any](ctx context.Context, g *Graph, f *Future[T]) (T, error) {
	if err := g.Materialize(ctx, f); err != nil {
		var zero T
		return zero, err
	}
	return f.Value(), nil
}

func depNodes(after []Handle) []*node {
	if len(after) == 0 {
		return nil
	}
	deps := make([]*node, 0, len(after))
	for _, h := range after {
		deps = append(deps, h.graphNode())
	}
	return deps
}

func collectReachable(targets []Handle) []*node {
	seen := make(map[*node]struct{})
	var out []*node
	var visit func(n *node)
	visit = func(n *node) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		for _, d := range n.deps {
			visit(d)
		}
		out = append(out, n)
	}
	for _, t := range targets {
		visit(t.graphNode())
	}
	return out
}

// Size returns the number of nodes in the graph.
func (g *Graph) Size() int {
	return len(g.nodes)
}
