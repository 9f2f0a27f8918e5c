package gpucore

import (
	"context"
	"log/slog"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpucore/backend"
	"github.com/vkngwrapper/gpucore/barrier"
	"github.com/vkngwrapper/gpucore/dynamic"
	"github.com/vkngwrapper/gpucore/internal/utils"
	"github.com/vkngwrapper/gpucore/memutils"
	"github.com/vkngwrapper/gpucore/state"
	"golang.org/x/exp/slices"
)

// dynamicHeap is one GPU-visible heap and the pool that carves it into chunks
type dynamicHeap struct {
	heap *dynamic.VirtualHeap
	pool *dynamic.ChunkPool
}

func newDynamicHeap(logger *slog.Logger, name string, flags dynamic.PoolCreateFlags, capacity int, alignment uint, budget int, chunkSize int, reserve int) (dynamicHeap, error) {
	heap, err := dynamic.NewVirtualHeap(logger, capacity, alignment, budget)
	if err != nil {
		return dynamicHeap{}, cerrors.Wrapf(err, "failed to create %s heap", name)
	}

	pool, err := dynamic.NewChunkPool(logger, heap, dynamic.PoolCreateOptions{
		Name:          name,
		Flags:         flags,
		ChunkSize:     chunkSize,
		ReserveChunks: reserve,
	})
	if err != nil {
		return dynamicHeap{}, cerrors.Wrapf(err, "failed to create %s pool", name)
	}

	return dynamicHeap{heap: heap, pool: pool}, nil
}

// Device owns everything shared between recording contexts: the resource state registry
// and the dynamic heaps that upload data and descriptors are sub-allocated from.
//
// Registering and unregistering resources excludes recording, but contexts may record
// transitions concurrently as long as no two of them touch the same resource at once.
type Device struct {
	logger  *slog.Logger
	options CreateOptions
	caps    backend.Capabilities

	mutex    utils.OptionalRWMutex
	registry *state.Registry
	// splits is shared by every context's planner
	splits *barrier.SplitTracker

	upload      dynamicHeap
	descriptors [descriptorHeapTypeCount]dynamicHeap

	contexts      *swiss.Map[int, *Context]
	nextContextID int
	destroyed     bool
}

// New creates a Device. A nil logger discards all output.
func New(logger *slog.Logger, options CreateOptions) (*Device, error) {
	logger = utils.LoggerOrDiscard(logger)
	options = options.withDefaults()

	err := options.Validate()
	if err != nil {
		return nil, err
	}

	poolFlags := dynamic.PoolCreateFlags(0)
	if options.Flags&CreateExternallySynchronized != 0 {
		poolFlags |= dynamic.PoolCreateExternallySynchronized
	}

	device := &Device{
		logger:  logger,
		options: options,
		caps:    backend.CapabilitiesFor(options.Backend),
		mutex: utils.OptionalRWMutex{
			UseMutex: options.Flags&CreateExternallySynchronized == 0,
		},
		registry:      state.NewRegistry(logger, options.ResourceCapacity),
		contexts:      swiss.NewMap[int, *Context](4),
		nextContextID: 1,
	}

	device.splits = barrier.NewSplitTracker(logger, device.registry, device.caps.SplitBarriers)

	device.upload, err = newDynamicHeap(logger, "Upload", poolFlags,
		options.DynamicHeapSize, options.UploadAlignment, options.DynamicHeapBudget,
		options.UploadPageSize, options.PagesToReserve)
	if err != nil {
		return nil, err
	}

	for i := 0; i < descriptorHeapTypeCount; i++ {
		device.descriptors[i], err = newDynamicHeap(logger, DescriptorHeapType(i).String(), poolFlags,
			options.DescriptorHeapSize[i], 1, 0,
			options.DescriptorChunkSize[i], 0)
		if err != nil {
			device.destroyPools(i)
			return nil, err
		}
	}

	logger.Debug("Device::New",
		slog.String("Backend", options.Backend.String()),
		slog.String("Flags", options.Flags.String()),
	)

	return device, nil
}

// destroyPools destroys the upload pool and the first descriptorCount descriptor pools
func (d *Device) destroyPools(descriptorCount int) error {
	err := d.upload.pool.Destroy()
	for i := 0; i < descriptorCount; i++ {
		err = cerrors.CombineErrors(err, d.descriptors[i].pool.Destroy())
	}
	return err
}

func (d *Device) Options() CreateOptions             { return d.options }
func (d *Device) Capabilities() backend.Capabilities { return d.caps }

// Registry returns the device's resource state registry. Callers that use it directly take
// on the registry's synchronization rules.
func (d *Device) Registry() *state.Registry { return d.registry }

// RegisterResource begins tracking a resource's state
func (d *Device) RegisterResource(desc state.ResourceDesc) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.registry.Register(desc)
}

// UnregisterResource stops tracking a resource. It must not be referenced by any frame that
// is still being recorded, nor have a split transition in flight.
func (d *Device) UnregisterResource(id state.ResourceID) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.splits.Pending(id) {
		return memutils.PreconditionFailed(cerrors.Wrapf(barrier.ErrSplitPending, "failed to unregister resource %d", id))
	}

	return d.registry.Unregister(id)
}

// ResourceState returns the tracked state of one subresource
func (d *Device) ResourceState(id state.ResourceID, subresource int) (state.ResourceState, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.registry.GetState(id, subresource)
}

// SetResourceState overwrites the tracked state of a range of subresources without planning a
// barrier. It is used when a transition was performed outside of any Context, such as by the
// swapchain.
func (d *Device) SetResourceState(id state.ResourceID, rng state.SubresourceRange, s state.ResourceState) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.registry.SetRangeState(id, rng, s)
}

// CreateContext creates a recording context for one queue
func (d *Device) CreateContext(options ContextOptions) (*Context, error) {
	d.logger.Debug("Device::CreateContext",
		slog.String("Name", options.Name),
		slog.String("QueueType", options.QueueType.String()),
	)

	if options.QueueType == state.QueueUnknown {
		return nil, memutils.PreconditionFailed(cerrors.Newf("context %q has no queue type", options.Name))
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.destroyed {
		return nil, cerrors.Wrapf(ErrDeviceDestroyed, "failed to create context %q", options.Name)
	}

	ctx, err := newContext(d, d.nextContextID, options)
	if err != nil {
		return nil, err
	}

	d.contexts.Put(ctx.id, ctx)
	d.nextContextID++

	return ctx, nil
}

// ContextCount returns the number of contexts that have not been released
func (d *Device) ContextCount() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.contexts.Count()
}

func (d *Device) pools() []*dynamic.ChunkPool {
	pools := []*dynamic.ChunkPool{d.upload.pool}
	for i := range d.descriptors {
		pools = append(pools, d.descriptors[i].pool)
	}
	return pools
}

// ReclaimCompleted reports that the GPU has finished every frame up to and including fence,
// making the chunks those frames used available again. It returns the number of chunks
// reclaimed across all heaps.
func (d *Device) ReclaimCompleted(fence uint64) int {
	d.logger.Debug("Device::ReclaimCompleted", slog.Uint64("fence", fence))

	reclaimed := 0
	for _, pool := range d.pools() {
		reclaimed += pool.ReclaimCompleted(fence)
		memutils.DebugValidate(pool)
	}

	return reclaimed
}

// Validate checks the consistency of the registry, every heap, and every pool
func (d *Device) Validate() error {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	err := d.registry.Validate()
	if err != nil {
		return err
	}

	heaps := append([]dynamicHeap{d.upload}, d.descriptors[:]...)
	for _, h := range heaps {
		err = h.heap.Validate()
		if err != nil {
			return err
		}

		err = h.pool.Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// CalculateStatistics sums the detailed statistics of every dynamic heap
func (d *Device) CalculateStatistics(stats *memutils.DetailedStatistics) {
	stats.Clear()
	for _, pool := range d.pools() {
		pool.AddDetailedStatistics(stats)
	}
}

func printStatistics(obj *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	obj.Name("ChunkCount").Int(stats.ChunkCount)
	obj.Name("ChunkBytes").Int(stats.ChunkBytes)
	obj.Name("AllocationCount").Int(stats.AllocationCount)
	obj.Name("AllocationBytes").Int(stats.AllocationBytes)
	obj.Name("InUseChunks").Int(stats.InUseChunkCount)
	obj.Name("RetiringChunks").Int(stats.RetiringChunkCount)
	obj.Name("FreeChunks").Int(stats.FreeChunkCount)

	if stats.ChunkCount > 0 {
		obj.Name("ChunkSizeMin").Int(stats.ChunkSizeMin)
		obj.Name("ChunkSizeMax").Int(stats.ChunkSizeMax)
	}
}

// BuildStatsString returns a JSON description of the device. When detailed is true, it
// includes every chunk of every pool and the tracked state of every resource.
func (d *Device) BuildStatsString(detailed bool) string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	writer := jwriter.NewWriter()
	root := writer.Object()

	root.Name("Backend").String(d.options.Backend.String())
	root.Name("Resources").Int(d.registry.Count())
	root.Name("Contexts").Int(d.contexts.Count())

	var total memutils.DetailedStatistics
	total.Clear()

	heapsObj := root.Name("Heaps").Object()
	for _, pool := range d.pools() {
		var stats memutils.DetailedStatistics
		stats.Clear()
		pool.AddDetailedStatistics(&stats)
		total.AddDetailedStatistics(&stats)

		poolObj := heapsObj.Name(pool.Name()).Object()
		printStatistics(&poolObj, &stats)
		poolObj.End()
	}
	heapsObj.End()

	totalObj := root.Name("Total").Object()
	printStatistics(&totalObj, &total)
	totalObj.End()

	if detailed {
		poolsObj := root.Name("Pools").Object()
		for _, pool := range d.pools() {
			pool.PrintDetailedMap(poolsObj.Name(pool.Name()))
		}
		poolsObj.End()

		d.registry.PrintDetailedMap(root.Name("ResourceStates"))
	}

	root.End()
	return string(writer.Bytes())
}

// Destroy releases every context that is still open and destroys the dynamic heaps. Leaked
// contexts, resources, and chunks are logged, and any chunk still in use is reported as an
// error. The device must not be used afterward.
func (d *Device) Destroy() error {
	d.logger.Debug("Device::Destroy")

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.destroyed {
		return cerrors.Wrap(ErrDeviceDestroyed, "failed to destroy device")
	}

	ids := make([]int, 0, d.contexts.Count())
	d.contexts.Iter(func(id int, _ *Context) bool {
		ids = append(ids, id)
		return false
	})
	slices.Sort(ids)

	var err error
	for _, id := range ids {
		ctx, _ := d.contexts.Get(id)
		d.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED CONTEXT] context not released before device destruction",
			slog.String("Name", ctx.name),
			slog.Int("ID", id),
		)
		err = cerrors.CombineErrors(err, ctx.releaseAfterLock())
	}

	if count := d.registry.Count(); count > 0 {
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, "[UNRELEASED RESOURCES] resources still registered at device destruction",
			slog.Int("Count", count),
		)
	}

	err = cerrors.CombineErrors(err, d.destroyPools(descriptorHeapTypeCount))
	d.destroyed = true

	return err
}
