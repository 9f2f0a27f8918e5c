package gpucore

import (
	"log/slog"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpucore/barrier"
	"github.com/vkngwrapper/gpucore/dynamic"
	"github.com/vkngwrapper/gpucore/memutils"
	"github.com/vkngwrapper/gpucore/state"
)

// ContextOptions configure a Context
type ContextOptions struct {
	Name      string
	QueueType state.QueueType
	QueueID   state.QueueID
	// Shared contexts may allocate from several goroutines at once. Transitions are never
	// safe to record concurrently on one context.
	Shared bool
	// Recorder receives every barrier the context plans. It may be nil, in which case the
	// barriers are only returned.
	Recorder BarrierRecorder
}

// Context records the work of one queue for one frame at a time. It plans the barriers its
// transitions need and sub-allocates the frame's upload data and descriptors.
type Context struct {
	device *Device
	logger *slog.Logger
	id     int
	name   string

	queueType state.QueueType
	queueID   state.QueueID
	recorder  BarrierRecorder

	planner     *barrier.Planner
	upload      *dynamic.SubAllocator
	descriptors [descriptorHeapTypeCount]*dynamic.SubAllocator

	released bool
}

func newContext(device *Device, id int, options ContextOptions) (*Context, error) {
	ctx := &Context{
		device:    device,
		logger:    device.logger,
		id:        id,
		name:      options.Name,
		queueType: options.QueueType,
		queueID:   options.QueueID,
		recorder:  options.Recorder,
		planner: barrier.NewPlanner(device.logger, device.registry, barrier.PlannerOptions{
			Splits: device.splits,
		}),
	}

	var err error
	ctx.upload, err = dynamic.NewSubAllocator(device.logger, device.upload.pool, dynamic.SubAllocatorOptions{
		Name:      options.Name + "/Upload",
		Alignment: device.options.UploadAlignment,
		Shared:    options.Shared,
	})
	if err != nil {
		return nil, err
	}

	for i := 0; i < descriptorHeapTypeCount; i++ {
		ctx.descriptors[i], err = dynamic.NewSubAllocator(device.logger, device.descriptors[i].pool, dynamic.SubAllocatorOptions{
			Name:   options.Name + "/" + DescriptorHeapType(i).String(),
			Shared: options.Shared,
		})
		if err != nil {
			return nil, err
		}
	}

	return ctx, nil
}

func (c *Context) Name() string               { return c.name }
func (c *Context) QueueType() state.QueueType { return c.queueType }
func (c *Context) QueueID() state.QueueID     { return c.queueID }

// Planner returns the context's barrier planner
func (c *Context) Planner() *barrier.Planner { return c.planner }

func (c *Context) checkReleased() error {
	if c.released {
		return memutils.PreconditionFailed(cerrors.Wrapf(ErrContextReleased, "context %q", c.name))
	}
	return nil
}

func (c *Context) record(barriers []barrier.Barrier) {
	if c.recorder != nil && len(barriers) > 0 {
		c.recorder.RecordBarriers(barriers)
	}
}

// TransitionResourceStates plans every request in order and hands the resulting barriers to
// the context's recorder in a single batch. Requests that leave QueueType unset are
// recorded on the context's queue.
//
// Planning stops at the first request that fails. The barriers planned before it are still
// recorded and returned, because the registry already reflects them.
func (c *Context) TransitionResourceStates(requests ...barrier.Request) ([]barrier.Barrier, error) {
	c.logger.Debug("Context::TransitionResourceStates", slog.String("Name", c.name), slog.Int("Count", len(requests)))

	err := c.checkReleased()
	if err != nil {
		return nil, err
	}

	c.device.mutex.RLock()
	defer c.device.mutex.RUnlock()

	var barriers []barrier.Barrier
	for _, request := range requests {
		if request.QueueType == state.QueueUnknown {
			request.QueueType = c.queueType
			request.QueueID = c.queueID
		}

		var planned []barrier.Barrier
		planned, err = c.planner.PlanTransition(request)
		if err != nil {
			break
		}
		barriers = append(barriers, planned...)
	}

	c.record(barriers)
	return barriers, err
}

// AllocateUpload sub-allocates size bytes of upload memory aligned to the device's upload
// alignment. The memory is valid until the frame is retired.
func (c *Context) AllocateUpload(size int) (dynamic.Allocation, error) {
	err := c.checkReleased()
	if err != nil {
		return dynamic.Allocation{}, err
	}

	return c.upload.Allocate(size)
}

// AllocateUploadAligned is AllocateUpload with a stricter alignment
func (c *Context) AllocateUploadAligned(size int, alignment uint) (dynamic.Allocation, error) {
	err := c.checkReleased()
	if err != nil {
		return dynamic.Allocation{}, err
	}

	return c.upload.AllocateAligned(size, alignment)
}

// AllocateDescriptors sub-allocates count contiguous descriptors from a GPU-visible heap.
// The allocation's HeapOffset is the index of the first descriptor in the heap.
func (c *Context) AllocateDescriptors(heapType DescriptorHeapType, count int) (dynamic.Allocation, error) {
	err := c.checkReleased()
	if err != nil {
		return dynamic.Allocation{}, err
	}

	if heapType < 0 || int(heapType) >= descriptorHeapTypeCount {
		return dynamic.Allocation{}, memutils.PreconditionFailed(cerrors.Newf("unknown descriptor heap type %d", int32(heapType)))
	}

	return c.descriptors[heapType].Allocate(count)
}

func (c *Context) allocators() []*dynamic.SubAllocator {
	return []*dynamic.SubAllocator{c.upload, c.descriptors[DescriptorHeapCbvSrvUav], c.descriptors[DescriptorHeapSampler]}
}

// FinishFrame ends the frame being recorded. Split transitions this context began but never
// ended are resolved and recorded, then every chunk the frame used is retired with fence, the
// value the queue will signal once the GPU has finished the frame.
func (c *Context) FinishFrame(fence uint64) error {
	c.logger.Debug("Context::FinishFrame", slog.String("Name", c.name), slog.Uint64("fence", fence))

	err := c.checkReleased()
	if err != nil {
		return err
	}

	c.device.mutex.RLock()
	barriers, err := c.planner.FinishFrame()
	c.device.mutex.RUnlock()
	c.record(barriers)

	for _, allocator := range c.allocators() {
		err = cerrors.CombineErrors(err, allocator.ReleaseChunks(fence))
	}

	return err
}

// AddStatistics adds the chunks held by the context and its allocations this frame to stats
func (c *Context) AddStatistics(stats *memutils.Statistics) {
	for _, allocator := range c.allocators() {
		allocator.AddStatistics(stats)
	}
}

// Release closes the context. Every frame it recorded must have been finished with
// FinishFrame.
func (c *Context) Release() error {
	c.logger.Debug("Context::Release", slog.String("Name", c.name))

	c.device.mutex.Lock()
	defer c.device.mutex.Unlock()

	return c.releaseAfterLock()
}

func (c *Context) releaseAfterLock() error {
	err := c.checkReleased()
	if err != nil {
		return err
	}

	if pending := c.planner.PendingSplits(); pending > 0 {
		err = cerrors.Wrapf(barrier.ErrSplitMismatch, "context %q released with %d split transitions pending", c.name, pending)
	}

	for _, allocator := range c.allocators() {
		err = cerrors.CombineErrors(err, allocator.Close())
	}

	c.released = true
	c.device.contexts.Delete(c.id)

	return err
}
