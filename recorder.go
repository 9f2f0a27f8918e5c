package gpucore

import "github.com/vkngwrapper/gpucore/barrier"

//go:generate mockgen -source recorder.go -destination ./mocks/recorder.go -package mock_gpucore

// BarrierRecorder is the command-recording layer a Context hands its planned barriers to.
// Implementations translate the barriers into native commands, for instance with the
// encoders in backend/vulkan or backend/d3d12.
type BarrierRecorder interface {
	RecordBarriers(barriers []barrier.Barrier)
}
