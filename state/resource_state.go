package state

// ResourceState describes how a resource is being used by the GPU. Most values are single
// bits; read-only states may be combined (see GenericRead), write states never are.
type ResourceState int32

const (
	// Unknown means the engine does not track the state: either the application owns the
	// resource's state, or (in a transition request) "use whatever the registry holds"
	Unknown ResourceState = 0
	// Undefined is the state of a freshly created resource; its contents are undefined
	Undefined ResourceState = 1 << (iota - 1)
	VertexBuffer
	ConstantBuffer
	IndexBuffer
	RenderTarget
	UnorderedAccess
	DepthWrite
	DepthRead
	ShaderResource
	StreamOut
	IndirectArgument
	CopyDest
	CopySource
	ResolveDest
	ResolveSource
	InputAttachment
	Present
	BuildASRead
	BuildASWrite
	RayTracing

	MaxStateBit = RayTracing
	allStates   = MaxStateBit<<1 - 1

	// GenericRead is the union of the read-only states that a buffer can be in at once
	GenericRead = VertexBuffer | ConstantBuffer | IndexBuffer | ShaderResource | IndirectArgument | CopySource

	// WriteStates is the set of states in which the GPU may write to the resource
	WriteStates = RenderTarget | UnorderedAccess | DepthWrite | StreamOut | CopyDest | ResolveDest | BuildASWrite
)

var resourceStateMapping = map[ResourceState]string{
	Unknown:          "Unknown",
	Undefined:        "Undefined",
	VertexBuffer:     "VertexBuffer",
	ConstantBuffer:   "ConstantBuffer",
	IndexBuffer:      "IndexBuffer",
	RenderTarget:     "RenderTarget",
	UnorderedAccess:  "UnorderedAccess",
	DepthWrite:       "DepthWrite",
	DepthRead:        "DepthRead",
	ShaderResource:   "ShaderResource",
	StreamOut:        "StreamOut",
	IndirectArgument: "IndirectArgument",
	CopyDest:         "CopyDest",
	CopySource:       "CopySource",
	ResolveDest:      "ResolveDest",
	ResolveSource:    "ResolveSource",
	InputAttachment:  "InputAttachment",
	Present:          "Present",
	BuildASRead:      "BuildASRead",
	BuildASWrite:     "BuildASWrite",
	RayTracing:       "RayTracing",
}

func (s ResourceState) String() string {
	return flagsToString(s, resourceStateMapping)
}

// IsWrite returns true if the GPU may write to a resource in this state
func (s ResourceState) IsWrite() bool {
	return s&WriteStates != 0
}

// Contains returns true if every bit of other is also set in s
func (s ResourceState) Contains(other ResourceState) bool {
	return s&other == other
}

// IsKnown returns true if s is a state the engine tracks, i.e. neither Unknown
// nor Undefined
func (s ResourceState) IsKnown() bool {
	return s != Unknown && s != Undefined
}

// IsWellFormed verifies the combination rules for a state value: no unknown bits, Undefined
// never combined with anything, and write states never combined with anything else.
func (s ResourceState) IsWellFormed() bool {
	if s&^allStates != 0 {
		return false
	}

	singleBit := s&(s-1) == 0
	if singleBit {
		return true
	}

	return s&Undefined == 0 && !s.IsWrite()
}

// ForEachBit calls fn once for every single-bit state set in s
func (s ResourceState) ForEachBit(fn func(bit ResourceState)) {
	for bit := ResourceState(1); bit <= MaxStateBit; bit <<= 1 {
		if s&bit != 0 {
			fn(bit)
		}
	}
}
