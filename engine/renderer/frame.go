package renderer

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// FrameState is the position of the orchestrator in the frame loop.
type FrameState uint8

const (
	FrameIdle FrameState = iota
	FrameAcquiring
	FrameRecording
	FrameSubmitted
	FramePresenting
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameAcquiring:
		return "acquiring"
	case FrameRecording:
		return "recording"
	case FrameSubmitted:
		return "submitted"
	case FramePresenting:
		return "presenting"
	}
	return fmt.Sprintf("FrameState(%d)", s)
}

// frameSlot holds the per frame synchronization objects. Slot i is reused
// by every frame whose counter is i modulo the number of frames in flight,
// and only after its fence signaled.
type frameSlot struct {
	index          uint32
	fence          metadata.Fence
	imageAcquired  metadata.Semaphore
	renderFinished metadata.Semaphore
	commandBuffer  metadata.CommandBuffer
	// submitted is set while the fence guards work handed to the queue. A
	// reset fence whose submit failed is never signaled, so it is not
	// waited on.
	submitted bool
}

func newFrameSlot(backend metadata.RendererBackend, index uint32) (*frameSlot, error) {
	s := &frameSlot{index: index}
	var err error
	if s.fence, err = backend.CreateFence(true); err != nil {
		return nil, err
	}
	if s.imageAcquired, err = backend.CreateSemaphore(); err != nil {
		s.destroy(backend)
		return nil, err
	}
	if s.renderFinished, err = backend.CreateSemaphore(); err != nil {
		s.destroy(backend)
		return nil, err
	}
	if s.commandBuffer, err = backend.AllocateCommandBuffer(); err != nil {
		s.destroy(backend)
		return nil, err
	}
	return s, nil
}

func (s *frameSlot) destroy(backend metadata.RendererBackend) {
	if s.commandBuffer != 0 {
		backend.FreeCommandBuffer(s.commandBuffer)
		s.commandBuffer = 0
	}
	if s.renderFinished != 0 {
		backend.DestroySemaphore(s.renderFinished)
		s.renderFinished = 0
	}
	if s.imageAcquired != 0 {
		backend.DestroySemaphore(s.imageAcquired)
		s.imageAcquired = 0
	}
	if s.fence != 0 {
		backend.DestroyFence(s.fence)
		s.fence = 0
	}
}
