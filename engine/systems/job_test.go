package systems

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
)

func newTestJobSystem(t *testing.T) *JobSystem {
	t.Helper()
	js, err := NewJobSystem(4, 16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { js.Shutdown() })
	return js
}

func TestNewJobSystemValidation(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		queue   int
		want    error
	}{
		{"no workers", 0, 1, ErrNoWorkers},
		{"negative queue", 1, -1, ErrNegativeChannelSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewJobSystem(tt.workers, tt.queue); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestJobGraphRespectsDependencies(t *testing.T) {
	js := newTestJobSystem(t)

	var mu sync.Mutex
	var order []string
	run := func(name string) func() error {
		return func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	g := NewJobGraph()
	geometry := g.Add("geometry", run("geometry"))
	textures := g.Add("textures", run("textures"))
	tlas := g.Add("tlas", run("tlas"), geometry)
	materials := g.Add("materials", run("materials"), textures)
	instances := g.Add("instances", run("instances"), tlas, materials)
	g.Add("emitters", run("emitters"), instances, materials)

	if err := js.Execute(g); err != nil {
		t.Fatal(err)
	}
	position := make(map[string]int)
	for i, name := range order {
		position[name] = i
	}
	if len(position) != g.Len() {
		t.Fatalf("ran %v", order)
	}
	for _, j := range g.Jobs() {
		for _, d := range j.Dependencies() {
			if position[d.Name] > position[j.Name] {
				t.Errorf("%s ran before its dependency %s: %v", j.Name, d.Name, order)
			}
		}
	}
}

func TestJobGraphCycleRunsNothing(t *testing.T) {
	js := newTestJobSystem(t)
	var ran atomic.Int32
	g := NewJobGraph()
	a := g.Add("a", func() error { ran.Add(1); return nil })
	b := g.Add("b", func() error { ran.Add(1); return nil }, a)
	a.After(b)
	g.Add("c", func() error { ran.Add(1); return nil })

	if err := js.Execute(g); !errors.Is(err, ErrJobCycle) {
		t.Fatalf("got %v", err)
	}
	if ran.Load() != 0 {
		t.Fatalf("%d jobs ran", ran.Load())
	}
}

func TestJobGraphUnknownDependency(t *testing.T) {
	js := newTestJobSystem(t)
	other := NewJobGraph().Add("foreign", nil)
	g := NewJobGraph()
	g.Add("local", nil, other)
	if err := js.Execute(g); !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("got %v", err)
	}
}

func TestFailedJobStillRunsDependents(t *testing.T) {
	js := newTestJobSystem(t)
	errBuild := errors.New("build failed")
	var dependentRan atomic.Bool

	g := NewJobGraph()
	build := g.Add("build", func() error { return errBuild })
	g.Add("after", func() error { dependentRan.Store(true); return nil }, build)

	err := js.Execute(g)
	if !errors.Is(err, errBuild) {
		t.Fatalf("got %v", err)
	}
	if !dependentRan.Load() {
		t.Fatal("dependent of a failed job did not run")
	}
}

func TestJobPanicReachesCaller(t *testing.T) {
	js := newTestJobSystem(t)
	g := NewJobGraph()
	g.Add("boom", func() error { panic("boom") })
	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("recovered %v", r)
		}
	}()
	js.Execute(g)
	t.Fatal("Execute returned after a job panicked")
}

func TestEmptyGraph(t *testing.T) {
	js := newTestJobSystem(t)
	if err := js.Execute(NewJobGraph()); err != nil {
		t.Fatal(err)
	}
}
