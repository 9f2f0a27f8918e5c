package backend

// Type identifies a native graphics API
type Type int32

const (
	TypeUndefined Type = iota
	TypeD3D11
	TypeD3D12
	TypeVulkan
	TypeOpenGL
	TypeMetal
)

var typeMapping = map[Type]string{
	TypeUndefined: "Undefined",
	TypeD3D11:     "D3D11",
	TypeD3D12:     "D3D12",
	TypeVulkan:    "Vulkan",
	TypeOpenGL:    "OpenGL",
	TypeMetal:     "Metal",
}

func (t Type) String() string {
	str, ok := typeMapping[t]
	if !ok {
		return "unknown backend Type"
	}

	return str
}

// ParseType returns the Type whose String matches name
func ParseType(name string) (Type, bool) {
	for t, str := range typeMapping {
		if str == name && t != TypeUndefined {
			return t, true
		}
	}

	return TypeUndefined, false
}

// Capabilities describe the barrier features of a backend that affect planning
type Capabilities struct {
	// SplitBarriers is true if the begin and end halves of a transition can be recorded
	// separately
	SplitBarriers bool
	// ExplicitBarriers is false for APIs whose driver tracks hazards itself. State is still
	// tracked for those backends, but the barriers planned for them are informational.
	ExplicitBarriers bool
}

// CapabilitiesFor returns the barrier capabilities of a backend
func CapabilitiesFor(t Type) Capabilities {
	switch t {
	case TypeD3D12:
		return Capabilities{SplitBarriers: true, ExplicitBarriers: true}
	case TypeVulkan, TypeMetal:
		return Capabilities{ExplicitBarriers: true}
	}

	return Capabilities{}
}
