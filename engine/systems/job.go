package systems

import (
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/core"
)

var (
	ErrNoWorkers           = errors.New("attempting to create worker pool with less than 1 worker")
	ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
	ErrJobCycle            = errors.New("job graph contains a cycle")
	ErrUnknownDependency   = errors.New("job depends on a job outside of its graph")
)

/**
 * @brief A unit of work in a job graph. A job starts once every job it depends on has finished,
 * whether or not those succeeded.
 */
type Job struct {
	Name         string
	Run          func() error
	dependencies []*Job
	graph        *JobGraph
	index        int
}

// After makes j wait for deps.
func (j *Job) After(deps ...*Job) *Job {
	for _, d := range deps {
		if d != nil {
			j.dependencies = append(j.dependencies, d)
		}
	}
	return j
}

func (j *Job) Dependencies() []*Job {
	return j.dependencies
}

/** @brief A set of jobs and their ordering constraints, executed once by the JobSystem. */
type JobGraph struct {
	jobs []*Job
}

func NewJobGraph() *JobGraph {
	return &JobGraph{}
}

// Add appends a job that runs after deps.
func (g *JobGraph) Add(name string, run func() error, deps ...*Job) *Job {
	j := &Job{Name: name, Run: run, graph: g, index: len(g.jobs)}
	g.jobs = append(g.jobs, j)
	return j.After(deps...)
}

func (g *JobGraph) Jobs() []*Job {
	return g.jobs
}

func (g *JobGraph) Len() int {
	return len(g.jobs)
}

// Find returns the first job named name, or nil.
func (g *JobGraph) Find(name string) *Job {
	for _, j := range g.jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// order validates the graph and returns a topological order of job indices.
func (g *JobGraph) order() ([]int, error) {
	indegree := make([]int, len(g.jobs))
	for _, j := range g.jobs {
		for _, d := range j.dependencies {
			if d.graph != g {
				return nil, errors.Wrapf(ErrUnknownDependency, "%s -> %s", j.Name, d.Name)
			}
		}
		indegree[j.index] = len(j.dependencies)
	}
	dependents := g.dependents()
	ready := make([]int, 0, len(g.jobs))
	for i, n := range indegree {
		if n == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, len(g.jobs))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(order) != len(g.jobs) {
		var stuck []string
		for i, n := range indegree {
			if n > 0 {
				stuck = append(stuck, g.jobs[i].Name)
			}
		}
		return nil, errors.Wrapf(ErrJobCycle, "unresolved jobs %v", stuck)
	}
	return order, nil
}

func (g *JobGraph) dependents() [][]int {
	dependents := make([][]int, len(g.jobs))
	for _, j := range g.jobs {
		for _, d := range j.dependencies {
			dependents[d.index] = append(dependents[d.index], j.index)
		}
	}
	return dependents
}

type jobResult struct {
	index int
	err   error
	panic any
}

/**
 * @brief Executes job graphs on a dynamic worker pool. Only the goroutine calling Execute
 * submits tasks, so a job never blocks a worker waiting for another job.
 */
type JobSystem struct {
	pool       worker.DynamicWorkerPool
	numWorkers int
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}
	return &JobSystem{
		pool:       worker.NewDynamicWorkerPool(numWorkers, channelSize, time.Second),
		numWorkers: numWorkers,
	}, nil
}

func (js *JobSystem) NumWorkers() int {
	return js.numWorkers
}

/**
 * @brief Runs every job of the graph respecting dependencies and blocks until all have finished.
 * @return The combined errors of the failed jobs, or ErrJobCycle/ErrUnknownDependency without running anything.
 */
func (js *JobSystem) Execute(g *JobGraph) error {
	if _, err := g.order(); err != nil {
		return err
	}
	if g.Len() == 0 {
		return nil
	}

	remaining := make([]int, g.Len())
	for _, j := range g.jobs {
		remaining[j.index] = len(j.dependencies)
	}
	dependents := g.dependents()
	done := make(chan jobResult, g.Len())

	for _, j := range g.jobs {
		if remaining[j.index] == 0 {
			js.submit(j, done)
		}
	}

	var err error
	var recovered any
	for finished := 0; finished < g.Len(); finished++ {
		r := <-done
		job := g.jobs[r.index]
		if r.panic != nil && recovered == nil {
			recovered = r.panic
		}
		if r.err != nil {
			core.LogError("job '%s' failed: %v", job.Name, r.err)
			err = errors.CombineErrors(err, errors.Wrapf(r.err, "job %s", job.Name))
		}
		for _, d := range dependents[r.index] {
			remaining[d]--
			if remaining[d] == 0 {
				js.submit(g.jobs[d], done)
			}
		}
	}
	if recovered != nil {
		panic(recovered)
	}
	return err
}

func (js *JobSystem) submit(j *Job, done chan<- jobResult) {
	js.pool.SubmitTask(worker.Task{
		ID: j.index,
		Do: func() (result any, err error) {
			defer func() {
				if p := recover(); p != nil {
					done <- jobResult{index: j.index, panic: p, err: errors.Newf("panic: %v", p)}
				}
			}()
			if j.Run != nil {
				err = j.Run()
			}
			done <- jobResult{index: j.index, err: err}
			return nil, err
		},
	})
}

/**
 * @brief Shuts the job system down.
 */
func (js *JobSystem) Shutdown() error {
	js.pool.Stop()
	return nil
}
