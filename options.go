package gpucore

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/gpucore/backend"
	"github.com/vkngwrapper/gpucore/memutils"
)

// CreateFlags indicate specific device behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized disables the chunk pools' mutexes. The consumer must
	// guarantee that every context records on the same goroutine.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

// DescriptorHeapType selects one of the GPU-visible descriptor heaps
type DescriptorHeapType int32

const (
	DescriptorHeapCbvSrvUav DescriptorHeapType = iota
	DescriptorHeapSampler

	descriptorHeapTypeCount = 2
)

var descriptorHeapTypeMapping = map[DescriptorHeapType]string{
	DescriptorHeapCbvSrvUav: "CbvSrvUav",
	DescriptorHeapSampler:   "Sampler",
}

func (t DescriptorHeapType) String() string {
	str, ok := descriptorHeapTypeMapping[t]
	if !ok {
		return "unknown DescriptorHeapType"
	}

	return str
}

const (
	defaultUploadPageSize   int  = 1024 * 1024
	defaultDynamicHeapSize  int  = 8 * 1024 * 1024
	defaultUploadAlignment  uint = 256
	defaultPagesToReserve   int  = 1
	defaultResourceCapacity int  = 1024
)

var (
	defaultDescriptorChunkSize = [descriptorHeapTypeCount]int{256, 32}
	defaultDescriptorHeapSize  = [descriptorHeapTypeCount]int{8192, 1024}
)

// CreateOptions contains optional settings when creating a Device. Zero fields take their
// defaults.
type CreateOptions struct {
	// Flags indicates specific device behaviors to activate or deactivate
	Flags CreateFlags
	// Backend selects the native API, which determines barrier capabilities
	Backend backend.Type

	// UploadPageSize is the size of each chunk of the dynamic upload heap. 1MB by default.
	UploadPageSize int
	// DynamicHeapSize is the capacity of the dynamic upload heap. 8MB by default.
	DynamicHeapSize int
	// DynamicHeapBudget caps the bytes of the upload heap in use at once. Zero means the whole
	// heap.
	DynamicHeapBudget int
	// UploadAlignment is the minimum alignment of every upload allocation, usually the
	// constant buffer offset alignment. 256 by default.
	UploadAlignment uint
	// PagesToReserve upload pages are allocated when the device is created. 1 by default;
	// a negative value reserves none.
	PagesToReserve int

	// DescriptorChunkSize is the number of descriptors in each chunk of each descriptor heap.
	// {256, 32} by default.
	DescriptorChunkSize [descriptorHeapTypeCount]int
	// DescriptorHeapSize is the number of descriptors in each GPU-visible descriptor heap.
	// {8192, 1024} by default.
	DescriptorHeapSize [descriptorHeapTypeCount]int

	// ResourceCapacity is a hint for the number of tracked resources
	ResourceCapacity int
}

func (o CreateOptions) withDefaults() CreateOptions {
	if o.Backend == backend.TypeUndefined {
		o.Backend = backend.TypeVulkan
	}
	if o.UploadPageSize == 0 {
		o.UploadPageSize = defaultUploadPageSize
	}
	if o.DynamicHeapSize == 0 {
		o.DynamicHeapSize = defaultDynamicHeapSize
	}
	if o.UploadAlignment == 0 {
		o.UploadAlignment = defaultUploadAlignment
	}
	if o.PagesToReserve == 0 {
		o.PagesToReserve = defaultPagesToReserve
	} else if o.PagesToReserve < 0 {
		o.PagesToReserve = 0
	}
	if o.ResourceCapacity == 0 {
		o.ResourceCapacity = defaultResourceCapacity
	}

	for i := 0; i < descriptorHeapTypeCount; i++ {
		if o.DescriptorChunkSize[i] == 0 {
			o.DescriptorChunkSize[i] = defaultDescriptorChunkSize[i]
		}
		if o.DescriptorHeapSize[i] == 0 {
			o.DescriptorHeapSize[i] = defaultDescriptorHeapSize[i]
		}
	}

	return o
}

// Validate reports options that cannot produce a working device
func (o CreateOptions) Validate() error {
	err := memutils.CheckPow2(o.UploadAlignment, "UploadAlignment")
	if err != nil {
		return err
	}

	if !memutils.IsAligned(o.UploadPageSize, o.UploadAlignment) {
		return cerrors.Newf("UploadPageSize %d is not a multiple of UploadAlignment %d", o.UploadPageSize, o.UploadAlignment)
	}

	if o.UploadPageSize > o.DynamicHeapSize {
		return cerrors.Newf("UploadPageSize %d is larger than DynamicHeapSize %d", o.UploadPageSize, o.DynamicHeapSize)
	}

	if o.PagesToReserve*o.UploadPageSize > o.DynamicHeapSize {
		return cerrors.Newf("%d reserved pages of %d do not fit in DynamicHeapSize %d", o.PagesToReserve, o.UploadPageSize, o.DynamicHeapSize)
	}

	for i := 0; i < descriptorHeapTypeCount; i++ {
		heapType := DescriptorHeapType(i)

		err = memutils.CheckSize(o.DescriptorChunkSize[i], "DescriptorChunkSize["+heapType.String()+"]")
		if err != nil {
			return err
		}

		if o.DescriptorChunkSize[i] > o.DescriptorHeapSize[i] {
			return cerrors.Newf("%s descriptor chunk size %d is larger than its heap of %d", heapType, o.DescriptorChunkSize[i], o.DescriptorHeapSize[i])
		}
	}

	return nil
}

func readDescriptorSizes(r *jreader.Reader, sizes *[descriptorHeapTypeCount]int) {
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case DescriptorHeapCbvSrvUav.String():
			sizes[DescriptorHeapCbvSrvUav] = r.Int()
		case DescriptorHeapSampler.String():
			sizes[DescriptorHeapSampler] = r.Int()
		default:
			_ = r.SkipValue()
		}
	}
}

// ParseCreateOptions reads CreateOptions from a JSON object whose keys are the CreateOptions
// field names. Descriptor sizes are objects keyed by heap type ("CbvSrvUav", "Sampler") and
// the backend is given by name. Unknown keys are ignored.
func ParseCreateOptions(data []byte) (CreateOptions, error) {
	var options CreateOptions

	r := jreader.NewReader(data)
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "ExternallySynchronized":
			if r.Bool() {
				options.Flags |= CreateExternallySynchronized
			}
		case "Backend":
			name := r.String()
			if r.Error() != nil {
				break
			}
			backendType, ok := backend.ParseType(name)
			if !ok {
				return CreateOptions{}, cerrors.Newf("unknown backend %q", name)
			}
			options.Backend = backendType
		case "UploadPageSize":
			options.UploadPageSize = r.Int()
		case "DynamicHeapSize":
			options.DynamicHeapSize = r.Int()
		case "DynamicHeapBudget":
			options.DynamicHeapBudget = r.Int()
		case "UploadAlignment":
			alignment := r.Int()
			if alignment < 0 {
				return CreateOptions{}, cerrors.Newf("UploadAlignment is %d", alignment)
			}
			options.UploadAlignment = uint(alignment)
		case "PagesToReserve":
			options.PagesToReserve = r.Int()
		case "ResourceCapacity":
			options.ResourceCapacity = r.Int()
		case "DescriptorChunkSize":
			readDescriptorSizes(&r, &options.DescriptorChunkSize)
		case "DescriptorHeapSize":
			readDescriptorSizes(&r, &options.DescriptorHeapSize)
		default:
			_ = r.SkipValue()
		}
	}

	if err := r.Error(); err != nil {
		return CreateOptions{}, cerrors.Wrap(err, "failed to parse create options")
	}

	return options, nil
}
