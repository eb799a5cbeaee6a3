package walker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridwalk/internal/dispatch"
	"github.com/vk/gridwalk/internal/filter"
	"github.com/vk/gridwalk/internal/graph"
	"github.com/vk/gridwalk/internal/registry"
	"github.com/vk/gridwalk/internal/schema"
	"github.com/vk/gridwalk/internal/session"
	"github.com/vk/gridwalk/internal/walker"
)

// fixture wires a table, session, and dispatcher around a set of ability
// declarations and their handler bodies.
type fixture struct {
	table *schema.Table
	sess  *session.Session
	sched *walker.Scheduler
}

func build(t *testing.T, abilities []schema.AbilityDecl, handlers map[string]walker.Func, opts walker.Options) *fixture {
	t.Helper()

	table := schema.NewTable()
	require.NoError(t, table.Add(&schema.Archetype{
		Name: "Place",
		Kind: schema.KindNode,
		Fields: []schema.FieldSpec{
			{Name: "name", Type: cty.String, Default: cty.StringVal("")},
		},
	}))
	require.NoError(t, table.Add(&schema.Archetype{Name: "Road", Kind: schema.KindEdge}))
	require.NoError(t, table.Add(&schema.Archetype{
		Name:      "Crawler",
		Kind:      schema.KindWalker,
		Abilities: abilities,
	}))
	require.NoError(t, table.Validate())

	reg := registry.New()
	for name, fn := range handlers {
		reg.Register(name, fn)
	}
	d, err := dispatch.Build(table, reg)
	require.NoError(t, err)

	mgr := session.NewManager(graph.NewStore(), table)
	sess, err := mgr.Session(context.Background(), "tester")
	require.NoError(t, err)

	return &fixture{
		table: table,
		sess:  sess,
		sched: walker.NewScheduler(table, d, nil, opts),
	}
}

// place creates a named Place node in the fixture session.
func (f *fixture) place(t *testing.T, name string) graph.ID {
	t.Helper()
	id, err := f.sess.CreateNode(context.Background(), "Place", map[string]cty.Value{
		"name": cty.StringVal(name),
	})
	require.NoError(t, err)
	return id
}

// road connects two places with a directed Road edge.
func (f *fixture) road(t *testing.T, from, to graph.ID) graph.ID {
	t.Helper()
	id, err := f.sess.Connect(context.Background(), from, to, "Road", true, nil)
	require.NoError(t, err)
	return id
}

func (f *fixture) run(t *testing.T, start graph.ID) ([]cty.Value, error) {
	t.Helper()
	w, err := walker.New(f.table, "Crawler", nil)
	require.NoError(t, err)
	return f.sched.Run(context.Background(), f.sess, w, start)
}

func recordAndFollow(visited *[]string) walker.Func {
	return func(ctx context.Context, t *walker.Traversal) (walker.Verdict, error) {
		v, err := t.HereField(ctx, "name")
		if err != nil {
			return walker.Continue, err
		}
		*visited = append(*visited, v.AsString())
		if err := t.VisitAdjacent(ctx, graph.Out, filter.Expr{Archetype: "Road"}); err != nil {
			return walker.Continue, err
		}
		return walker.Continue, nil
	}
}

func TestFIFOTraversalOrder(t *testing.T) {
	var visited []string
	f := build(t,
		[]schema.AbilityDecl{
			{Name: "crawl", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "crawl"},
		},
		map[string]walker.Func{"crawl": recordAndFollow(&visited)},
		walker.Options{},
	)

	// A -> B, A -> C, B -> D. Breadth order is A, B, C, D.
	a := f.place(t, "A")
	b := f.place(t, "B")
	c := f.place(t, "C")
	d := f.place(t, "D")
	f.road(t, a, b)
	f.road(t, a, c)
	f.road(t, b, d)

	_, err := f.run(t, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, visited)
}

func TestSkipStopsRemainingAbilitiesForLocation(t *testing.T) {
	var trace []string
	f := build(t,
		[]schema.AbilityDecl{
			{Name: "first", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "first"},
			{Name: "second", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "second"},
		},
		map[string]walker.Func{
			"first": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				v, err := tr.HereField(ctx, "name")
				if err != nil {
					return walker.Continue, err
				}
				trace = append(trace, "first:"+v.AsString())
				if v.AsString() == "A" {
					// The staged visit must survive the skip.
					if err := tr.VisitAdjacent(ctx, graph.Out, filter.Expr{Archetype: "Road"}); err != nil {
						return walker.Continue, err
					}
					return walker.Skip, nil
				}
				return walker.Continue, nil
			},
			"second": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				v, err := tr.HereField(ctx, "name")
				if err != nil {
					return walker.Continue, err
				}
				trace = append(trace, "second:"+v.AsString())
				return walker.Continue, nil
			},
		},
		walker.Options{},
	)

	a := f.place(t, "A")
	b := f.place(t, "B")
	f.road(t, a, b)

	_, err := f.run(t, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"first:A", "first:B", "second:B"}, trace,
		"skip suppresses the second ability at A only, and the staged visit to B still happens")
}

func TestDisengageTerminatesImmediately(t *testing.T) {
	var trace []string
	f := build(t,
		[]schema.AbilityDecl{
			{Name: "crawl", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "crawl"},
			{Name: "after", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "after"},
			{Name: "bye", Actor: "Crawler", Target: "Place", Phase: schema.PhaseExit, Handler: "bye"},
		},
		map[string]walker.Func{
			"crawl": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				v, err := tr.HereField(ctx, "name")
				if err != nil {
					return walker.Continue, err
				}
				trace = append(trace, v.AsString())
				if err := tr.VisitAdjacent(ctx, graph.Out, filter.Expr{Archetype: "Road"}); err != nil {
					return walker.Continue, err
				}
				if v.AsString() == "B" {
					return walker.Disengage, nil
				}
				return walker.Continue, nil
			},
			"after": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				trace = append(trace, "after")
				return walker.Continue, nil
			},
			"bye": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				trace = append(trace, "exit")
				return walker.Continue, nil
			},
		},
		walker.Options{},
	)

	a := f.place(t, "A")
	b := f.place(t, "B")
	c := f.place(t, "C")
	f.road(t, a, b)
	f.road(t, b, c)

	_, err := f.run(t, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "after", "B"}, trace,
		"disengage at B drops the queued C, the remaining abilities at B, and the exit phase")
}

func TestExitAbilityFiresOnceAtLastLocation(t *testing.T) {
	var exits []string
	var visited []string
	f := build(t,
		[]schema.AbilityDecl{
			{Name: "crawl", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "crawl"},
			{Name: "bye", Actor: "Crawler", Target: "Place", Phase: schema.PhaseExit, Handler: "bye"},
		},
		map[string]walker.Func{
			"crawl": recordAndFollow(&visited),
			"bye": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				v, err := tr.HereField(ctx, "name")
				if err != nil {
					return walker.Continue, err
				}
				exits = append(exits, v.AsString())
				return walker.Continue, nil
			},
		},
		walker.Options{},
	)

	a := f.place(t, "A")
	b := f.place(t, "B")
	f.road(t, a, b)

	_, err := f.run(t, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, visited)
	assert.Equal(t, []string{"B"}, exits, "exit fires exactly once, at the last processed location")
}

func TestTraversalLimit(t *testing.T) {
	var visited []string
	f := build(t,
		[]schema.AbilityDecl{
			{Name: "crawl", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "crawl"},
		},
		map[string]walker.Func{"crawl": recordAndFollow(&visited)},
		walker.Options{MaxSteps: 5},
	)

	// A two-node cycle never drains the queue.
	a := f.place(t, "A")
	b := f.place(t, "B")
	f.road(t, a, b)
	f.road(t, b, a)

	_, err := f.run(t, a)
	var limitErr *walker.TraversalLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Limit)
	assert.Len(t, visited, 5)
}

func TestAbilityErrorRollsBackMutations(t *testing.T) {
	f := build(t,
		[]schema.AbilityDecl{
			{Name: "mutate", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "mutate"},
		},
		map[string]walker.Func{
			"mutate": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				if err := tr.SetHereField(ctx, "name", cty.StringVal("scribbled")); err != nil {
					return walker.Continue, err
				}
				// A field the archetype never declared.
				if err := tr.SetHereField(ctx, "scratch", cty.StringVal("residue")); err != nil {
					return walker.Continue, err
				}
				created, err := tr.CreateNode(ctx, "Place", map[string]cty.Value{"name": cty.StringVal("debris")})
				if err != nil {
					return walker.Continue, err
				}
				if _, err := tr.Connect(ctx, tr.HereID(), created, "Road", true, nil); err != nil {
					return walker.Continue, err
				}
				return walker.Continue, errors.New("boom")
			},
		},
		walker.Options{},
	)

	a := f.place(t, "A")

	_, err := f.run(t, a)
	var abErr *walker.AbilityError
	require.ErrorAs(t, err, &abErr)
	assert.Equal(t, "mutate", abErr.Ability)
	assert.EqualError(t, abErr.Err, "boom")

	ctx := context.Background()
	store := f.sess.Store()

	n, err := store.Node(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("A"), n.Fields["name"], "field write must be rolled back")
	_, leaked := n.Fields["scratch"]
	assert.False(t, leaked, "a write that introduced the field must delete it on rollback")
	assert.Empty(t, n.Out, "created edge must be rolled back")

	nodes, _ := store.LocalIDs()
	assert.Len(t, nodes, 2, "only the root and A survive the rollback")
}

func TestDeleteAndRestoreThroughTraversal(t *testing.T) {
	var deleted graph.ID
	f := build(t,
		[]schema.AbilityDecl{
			{Name: "prune", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "prune"},
		},
		map[string]walker.Func{
			"prune": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				ids, err := tr.Select(ctx, graph.Out, filter.Expr{Archetype: "Road"})
				if err != nil {
					return walker.Continue, err
				}
				if len(ids) > 0 {
					deleted = ids[0]
					if err := tr.DeleteNode(ctx, ids[0]); err != nil {
						return walker.Continue, err
					}
				}
				return walker.Continue, errors.New("abort after delete")
			},
		},
		walker.Options{},
	)

	a := f.place(t, "A")
	b := f.place(t, "B")
	eid := f.road(t, a, b)

	_, err := f.run(t, a)
	require.Error(t, err)

	ctx := context.Background()
	store := f.sess.Store()
	n, err := store.Node(ctx, deleted)
	require.NoError(t, err, "deleted node must be restored on rollback")
	assert.Equal(t, cty.StringVal("B"), n.Fields["name"])

	edges, err := store.Adjacent(ctx, a, graph.Out, nil)
	require.NoError(t, err)
	assert.Contains(t, edges, eid, "cascaded edge must be restored too")
}

func TestWalkerStateAndReport(t *testing.T) {
	f := build(t,
		[]schema.AbilityDecl{
			{Name: "report", Actor: "Crawler", Target: "Place", Phase: schema.PhaseEntry, Handler: "report"},
		},
		map[string]walker.Func{
			"report": func(ctx context.Context, tr *walker.Traversal) (walker.Verdict, error) {
				v, err := tr.HereField(ctx, "name")
				if err != nil {
					return walker.Continue, err
				}
				tr.Report(v)
				return walker.Continue, nil
			},
		},
		walker.Options{},
	)

	a := f.place(t, "A")

	w, err := walker.New(f.table, "Crawler", nil)
	require.NoError(t, err)
	report, err := f.sched.Run(context.Background(), f.sess, w, a)
	require.NoError(t, err)

	assert.Equal(t, walker.StateTerminated, w.State())
	assert.Equal(t, []cty.Value{cty.StringVal("A")}, report)
}
