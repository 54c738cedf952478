package core

import (
	"github.com/spaghettifunk/quartz/engine/containers"
	"golang.org/x/exp/constraints"
)

const AVG_COUNT int = 30

type number interface {
	constraints.Integer | constraints.Float
}

// MovingAverage keeps the running mean of the last N samples.
type MovingAverage[T number] struct {
	values  *containers.RingQueue[T]
	average T
}

func NewMovingAverage[T number](limit int) *MovingAverage[T] {
	Assert(limit > 0, "moving average limit must be positive, got %d", limit)
	return &MovingAverage[T]{
		values: containers.NewRingQueue[T](limit),
	}
}

// Add pushes a sample and returns the updated average.
func (m *MovingAverage[T]) Add(value T) T {
	limit := T(m.values.Capacity())
	if m.values.IsFull() {
		oldest, _ := m.values.Dequeue()
		m.average = m.average + (value / limit) - (oldest / limit)
		_ = m.values.Enqueue(value)
		return m.average
	}
	_ = m.values.Enqueue(value)
	m.average += (value - m.average) / T(m.values.Len())
	return m.average
}

func (m *MovingAverage[T]) Reset() {
	m.average = 0
	m.values.Clear()
}

func (m *MovingAverage[T]) Average() T {
	return m.average
}

// FrameMetrics tracks the frame time average and the frames per second of the frame loop.
type FrameMetrics struct {
	frameMS            *MovingAverage[float64]
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		frameMS: NewMovingAverage[float64](AVG_COUNT),
	}
}

func (m *FrameMetrics) Update(frameElapsedSeconds float64) {
	frameMS := frameElapsedSeconds * 1000.0
	m.frameMS.Add(frameMS)

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

func (m *FrameMetrics) FrameTime() float64 {
	return m.frameMS.Average()
}

func (m *FrameMetrics) Frame() (float64, float64) {
	return m.fps, m.frameMS.Average()
}
