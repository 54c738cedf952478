package renderer

import (
	"time"

	"github.com/spaghettifunk/quartz/engine/core"
)

// Statistics is a snapshot of the frame timings averaged over the last frames.
type Statistics struct {
	CPUFrameTimeMS float64
	GPUFrameTimeMS float64
	// Time spent accumulating the current image.
	TotalRenderTime   time.Duration
	AccumulatedFrames uint32
}

type statistics struct {
	cpu         *core.MovingAverage[float64]
	gpu         *core.MovingAverage[float64]
	frameClock  *core.Clock
	renderClock *core.Clock
}

func newStatistics() *statistics {
	s := &statistics{
		cpu:         core.NewMovingAverage[float64](core.AVG_COUNT),
		gpu:         core.NewMovingAverage[float64](core.AVG_COUNT),
		frameClock:  core.NewClock(),
		renderClock: core.NewClock(),
	}
	s.renderClock.Start()
	return s
}

func (s *statistics) beginFrame() {
	s.frameClock.Start()
}

func (s *statistics) endFrame() {
	s.frameClock.Update()
	s.frameClock.Stop()
	s.cpu.Add(float64(s.frameClock.Elapsed().Microseconds()) / 1000)
	s.renderClock.Update()
}

func (s *statistics) addGPUTime(ms float64) {
	s.gpu.Add(ms)
}

// restart begins a new accumulation.
func (s *statistics) restart() {
	s.renderClock.Start()
}

func (r *Renderer) Statistics() Statistics {
	return Statistics{
		CPUFrameTimeMS:    r.stats.cpu.Average(),
		GPUFrameTimeMS:    r.stats.gpu.Average(),
		TotalRenderTime:   r.stats.renderClock.Elapsed(),
		AccumulatedFrames: r.frameNumber,
	}
}
