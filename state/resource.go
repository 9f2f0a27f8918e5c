package state

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
)

// ResourceID identifies a buffer or texture. Zero is never a valid id.
type ResourceID uint64

// AllSubresources addresses every subresource of a resource at once
const AllSubresources int = -1

// ResourceDesc is the immutable description of a resource supplied at registration
type ResourceDesc struct {
	ID        ResourceID
	Kind      ResourceKind
	Name      string
	BindFlags BindFlags
	// SubresourceCount is the number of independently tracked subresources (mips * array
	// slices for textures). Zero is treated as one.
	SubresourceCount int
	// InitialState is the state the resource is in when registered. Unknown is treated
	// as Undefined.
	InitialState ResourceState
}

func (d ResourceDesc) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s %d (%s)", d.Kind, d.ID, d.Name)
	}
	return fmt.Sprintf("%s %d", d.Kind, d.ID)
}

// SubresourceRange is a contiguous run of subresources. A zero Count means "every
// subresource from First onward", so the zero value addresses the whole resource.
type SubresourceRange struct {
	First int
	Count int
}

// WholeResource is the range covering every subresource
var WholeResource = SubresourceRange{}

// Resolve turns r into an explicit [first, first+count) range for a resource with
// subresourceCount subresources
func (r SubresourceRange) Resolve(subresourceCount int) (first, count int, err error) {
	if r.First < 0 || r.Count < 0 || r.First >= subresourceCount {
		return 0, 0, cerrors.Wrapf(ErrSubresourceOutOfRange, "range [%d,+%d) of %d subresources", r.First, r.Count, subresourceCount)
	}

	count = r.Count
	if count == 0 {
		count = subresourceCount - r.First
	}

	if r.First+count > subresourceCount {
		return 0, 0, cerrors.Wrapf(ErrSubresourceOutOfRange, "range [%d,+%d) of %d subresources", r.First, r.Count, subresourceCount)
	}

	return r.First, count, nil
}

// IsWhole returns true if r covers every subresource of a resource with subresourceCount
// subresources
func (r SubresourceRange) IsWhole(subresourceCount int) bool {
	return r.First == 0 && (r.Count == 0 || r.Count == subresourceCount)
}
