package state

// BindFlags declare how a resource may be bound to the pipeline. They are fixed when the
// resource is created and bound the set of states it may ever enter.
type BindFlags int32

const (
	BindVertexBuffer BindFlags = 1 << iota
	BindIndexBuffer
	BindUniformBuffer
	BindShaderResource
	BindStreamOutput
	BindRenderTarget
	BindDepthStencil
	BindUnorderedAccess
	BindIndirectDrawArgs
	BindInputAttachment
	BindRayTracing
	BindCopySource
	BindCopyDest

	BindNone BindFlags = 0
)

var bindFlagsMapping = map[BindFlags]string{
	BindNone:             "BindNone",
	BindVertexBuffer:     "BindVertexBuffer",
	BindIndexBuffer:      "BindIndexBuffer",
	BindUniformBuffer:    "BindUniformBuffer",
	BindShaderResource:   "BindShaderResource",
	BindStreamOutput:     "BindStreamOutput",
	BindRenderTarget:     "BindRenderTarget",
	BindDepthStencil:     "BindDepthStencil",
	BindUnorderedAccess:  "BindUnorderedAccess",
	BindIndirectDrawArgs: "BindIndirectDrawArgs",
	BindInputAttachment:  "BindInputAttachment",
	BindRayTracing:       "BindRayTracing",
	BindCopySource:       "BindCopySource",
	BindCopyDest:         "BindCopyDest",
}

func (f BindFlags) String() string {
	return flagsToString(f, bindFlagsMapping)
}

// ResourceKind distinguishes buffers from textures, since several states only make sense
// for one of the two
type ResourceKind int32

const (
	KindBuffer ResourceKind = iota + 1
	KindTexture
)

var resourceKindMapping = map[ResourceKind]string{
	KindBuffer:  "Buffer",
	KindTexture: "Texture",
}

func (k ResourceKind) String() string {
	str, ok := resourceKindMapping[k]
	if !ok {
		return "unknown ResourceKind"
	}

	return str
}

// QueueType is the class of operations a queue (and every context recording for it) can
// perform. Each class is a superset of the previous one: graphics queues can do everything
// compute queues can, which can do everything transfer queues can.
type QueueType int32

const (
	QueueUnknown  QueueType = 0
	QueueTransfer QueueType = 0x1
	QueueCompute  QueueType = 0x2 | QueueTransfer
	QueueGraphics QueueType = 0x4 | QueueCompute
)

var queueTypeMapping = map[QueueType]string{
	QueueUnknown:  "QueueUnknown",
	QueueTransfer: "QueueTransfer",
	QueueCompute:  "QueueCompute",
	QueueGraphics: "QueueGraphics",
}

func (q QueueType) String() string {
	str, ok := queueTypeMapping[q]
	if !ok {
		return "unknown QueueType"
	}

	return str
}

// Supports returns true if a queue of type q can execute operations that require
// queue class other
func (q QueueType) Supports(other QueueType) bool {
	return other != QueueUnknown && q&other == other
}

// QueueID identifies a single queue (or immediate/deferred context) issuing operations
type QueueID int
