package state

import (
	"log/slog"
	"strconv"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpucore/internal/utils"
	"github.com/vkngwrapper/gpucore/memutils"
	"golang.org/x/exp/slices"
)

type resourceEntry struct {
	desc ResourceDesc
	// state is the state of every subresource while subresourceStates is nil
	state             ResourceState
	subresourceStates []ResourceState
}

func (e *resourceEntry) uniform() (ResourceState, bool) {
	if e.subresourceStates == nil {
		return e.state, true
	}

	first := e.subresourceStates[0]
	for _, s := range e.subresourceStates[1:] {
		if s != first {
			return Unknown, false
		}
	}

	return first, true
}

func (e *resourceEntry) stateAt(index int) ResourceState {
	if e.subresourceStates == nil {
		return e.state
	}
	return e.subresourceStates[index]
}

func (e *resourceEntry) setRange(first, count int, s ResourceState) {
	if first == 0 && count == e.desc.SubresourceCount {
		e.state = s
		e.subresourceStates = nil
		return
	}

	if e.subresourceStates == nil {
		e.subresourceStates = make([]ResourceState, e.desc.SubresourceCount)
		for i := range e.subresourceStates {
			e.subresourceStates[i] = e.state
		}
	}

	for i := first; i < first+count; i++ {
		e.subresourceStates[i] = s
	}

	// Collapse back to a single tracked value once every subresource agrees
	if uniform, ok := e.uniform(); ok {
		e.state = uniform
		e.subresourceStates = nil
	}
}

// Registry is the authoritative record of each resource's current GPU state, either as one
// value for the whole resource or as one value per subresource.
//
// Registry is not internally synchronized. Callers must guarantee that a resource's state is
// only read and written by one recording context at a time, which is the same guarantee a
// GPU requires for the resource itself.
type Registry struct {
	logger    *slog.Logger
	resources *swiss.Map[ResourceID, *resourceEntry]
}

// NewRegistry creates an empty registry. capacity is a hint for the number of resources.
func NewRegistry(logger *slog.Logger, capacity int) *Registry {
	if capacity < 1 {
		capacity = 64
	}

	return &Registry{
		logger:    utils.LoggerOrDiscard(logger),
		resources: swiss.NewMap[ResourceID, *resourceEntry](uint32(capacity)),
	}
}

func (r *Registry) lookup(id ResourceID) (*resourceEntry, error) {
	entry, ok := r.resources.Get(id)
	if !ok {
		return nil, memutils.PreconditionFailed(cerrors.Wrapf(ErrResourceNotRegistered, "resource %d", id))
	}

	return entry, nil
}

// Register begins tracking a resource. The resource starts in desc.InitialState, or
// Undefined if no initial state was supplied.
func (r *Registry) Register(desc ResourceDesc) error {
	r.logger.Debug("Registry::Register", slog.Uint64("ID", uint64(desc.ID)), slog.String("Name", desc.Name))

	if desc.ID == 0 {
		return memutils.PreconditionFailed(cerrors.Newf("resource %q has id 0", desc.Name))
	}

	if desc.Kind != KindBuffer && desc.Kind != KindTexture {
		return memutils.PreconditionFailed(cerrors.Newf("resource %d has invalid kind %d", desc.ID, int32(desc.Kind)))
	}

	if r.resources.Has(desc.ID) {
		return memutils.PreconditionFailed(cerrors.Wrapf(ErrAlreadyRegistered, "resource %d", desc.ID))
	}

	if desc.SubresourceCount < 1 {
		desc.SubresourceCount = 1
	}

	if desc.InitialState == Unknown {
		desc.InitialState = Undefined
	}

	err := ValidateForResource(desc.InitialState, &desc)
	if err != nil {
		return memutils.PreconditionFailed(cerrors.Wrapf(err, "initial state of %s", desc))
	}

	r.resources.Put(desc.ID, &resourceEntry{
		desc:  desc,
		state: desc.InitialState,
	})
	return nil
}

// Unregister stops tracking a resource
func (r *Registry) Unregister(id ResourceID) error {
	r.logger.Debug("Registry::Unregister", slog.Uint64("ID", uint64(id)))

	if !r.resources.Delete(id) {
		return memutils.PreconditionFailed(cerrors.Wrapf(ErrResourceNotRegistered, "resource %d", id))
	}
	return nil
}

// IsRegistered returns true if the registry is tracking a resource with the given id
func (r *Registry) IsRegistered(id ResourceID) bool {
	return r.resources.Has(id)
}

// Count returns the number of registered resources
func (r *Registry) Count() int {
	return r.resources.Count()
}

// Desc returns the description a resource was registered with
func (r *Registry) Desc(id ResourceID) (ResourceDesc, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return ResourceDesc{}, err
	}

	return entry.desc, nil
}

// GetState returns the current state of one subresource, or of the whole resource when
// subresource is AllSubresources. Asking for the whole-resource state while subresources
// disagree returns ErrMixedSubresourceStates; use SubresourceStates in that case.
func (r *Registry) GetState(id ResourceID, subresource int) (ResourceState, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return Unknown, err
	}

	if subresource == AllSubresources {
		s, ok := entry.uniform()
		if !ok {
			return Unknown, cerrors.Wrapf(ErrMixedSubresourceStates, "%s", entry.desc)
		}
		return s, nil
	}

	if subresource < 0 || subresource >= entry.desc.SubresourceCount {
		return Unknown, memutils.PreconditionFailed(
			cerrors.Wrapf(ErrSubresourceOutOfRange, "subresource %d of %s", subresource, entry.desc),
		)
	}

	return entry.stateAt(subresource), nil
}

// SetState records a new state for one subresource, or for the whole resource when
// subresource is AllSubresources. Setting Unknown hands state ownership to the application.
func (r *Registry) SetState(id ResourceID, subresource int, s ResourceState) error {
	if subresource == AllSubresources {
		return r.SetRangeState(id, WholeResource, s)
	}

	if subresource < 0 {
		return memutils.PreconditionFailed(cerrors.Wrapf(ErrSubresourceOutOfRange, "subresource %d", subresource))
	}

	return r.SetRangeState(id, SubresourceRange{First: subresource, Count: 1}, s)
}

// SetRangeState records a new state for a contiguous range of subresources
func (r *Registry) SetRangeState(id ResourceID, rng SubresourceRange, s ResourceState) error {
	entry, err := r.lookup(id)
	if err != nil {
		return err
	}

	first, count, err := rng.Resolve(entry.desc.SubresourceCount)
	if err != nil {
		return memutils.PreconditionFailed(cerrors.Wrapf(err, "%s", entry.desc))
	}

	err = ValidateForResource(s, &entry.desc)
	if err != nil {
		return memutils.PreconditionFailed(err)
	}

	entry.setRange(first, count, s)
	return nil
}

// SubresourceStates returns the state of each subresource in rng, in order
func (r *Registry) SubresourceStates(id ResourceID, rng SubresourceRange) ([]ResourceState, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	first, count, err := rng.Resolve(entry.desc.SubresourceCount)
	if err != nil {
		return nil, memutils.PreconditionFailed(cerrors.Wrapf(err, "%s", entry.desc))
	}

	states := make([]ResourceState, count)
	for i := range states {
		states[i] = entry.stateAt(first + i)
	}

	return states, nil
}

// Validate checks every tracked state against its resource's declared bind flags
func (r *Registry) Validate() error {
	var err error
	r.resources.Iter(func(id ResourceID, entry *resourceEntry) bool {
		if entry.desc.ID != id {
			err = cerrors.Newf("resource %d is stored under id %d", entry.desc.ID, id)
			return true
		}

		if entry.subresourceStates != nil && len(entry.subresourceStates) != entry.desc.SubresourceCount {
			err = cerrors.Newf("%s tracks %d subresource states but has %d subresources", entry.desc, len(entry.subresourceStates), entry.desc.SubresourceCount)
			return true
		}

		for i := 0; i < entry.desc.SubresourceCount; i++ {
			err = ValidateForResource(entry.stateAt(i), &entry.desc)
			if err != nil {
				err = cerrors.Wrapf(err, "subresource %d", i)
				return true
			}
		}

		return false
	})

	return err
}

func (r *Registry) sortedIDs() []ResourceID {
	ids := make([]ResourceID, 0, r.resources.Count())
	r.resources.Iter(func(id ResourceID, _ *resourceEntry) bool {
		ids = append(ids, id)
		return false
	})
	slices.Sort(ids)
	return ids
}

// PrintDetailedMap writes every registered resource and its tracked state(s) as a JSON
// object keyed by resource id
func (r *Registry) PrintDetailedMap(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	for _, id := range r.sortedIDs() {
		entry, _ := r.resources.Get(id)

		resObj := objState.Name(strconv.FormatUint(uint64(id), 10)).Object()
		resObj.Name("Kind").String(entry.desc.Kind.String())
		if entry.desc.Name != "" {
			resObj.Name("Name").String(entry.desc.Name)
		}
		resObj.Name("BindFlags").String(entry.desc.BindFlags.String())
		resObj.Name("SubresourceCount").Int(entry.desc.SubresourceCount)

		if entry.subresourceStates == nil {
			resObj.Name("State").String(entry.state.String())
		} else {
			arr := resObj.Name("SubresourceStates").Array()
			for _, s := range entry.subresourceStates {
				arr.String(s.String())
			}
			arr.End()
		}

		resObj.End()
	}
}
