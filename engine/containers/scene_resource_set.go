package containers

// NotFound is returned by lookups for identities that were never added.
const NotFound = ^uint32(0)

// SceneResourceSet maps node identities to dense indices into a parallel slice of resources.
// Indices are only meaningful for the current contents; Clear and TakeResources invalidate them.
type SceneResourceSet[K comparable, T any] struct {
	resources []T
	indices   map[K]uint32
}

func NewSceneResourceSet[K comparable, T any]() *SceneResourceSet[K, T] {
	return &SceneResourceSet[K, T]{
		indices: make(map[K]uint32),
	}
}

// AddResource appends a resource and returns its index.
// Adding an identity twice keeps the first index mapped and appends an unreachable entry; use AddOrUpdateResource for updates.
func (s *SceneResourceSet[K, T]) AddResource(id K, resource T) uint32 {
	index := uint32(len(s.resources))
	s.resources = append(s.resources, resource)
	if _, ok := s.indices[id]; !ok {
		s.indices[id] = index
	}
	return index
}

// AddOrUpdateResource stores resource under id. The returned previous value is only valid when updated is true.
func (s *SceneResourceSet[K, T]) AddOrUpdateResource(id K, resource T) (index uint32, previous T, updated bool) {
	if index, ok := s.indices[id]; ok {
		previous = s.resources[index]
		s.resources[index] = resource
		return index, previous, true
	}
	index = uint32(len(s.resources))
	s.resources = append(s.resources, resource)
	s.indices[id] = index
	return index, previous, false
}

func (s *SceneResourceSet[K, T]) LookupIndex(id K) uint32 {
	if index, ok := s.indices[id]; ok {
		return index
	}
	return NotFound
}

func (s *SceneResourceSet[K, T]) LookupResource(id K) (T, uint32) {
	if index, ok := s.indices[id]; ok {
		return s.resources[index], index
	}
	var zero T
	return zero, NotFound
}

func (s *SceneResourceSet[K, T]) Contains(id K) bool {
	_, ok := s.indices[id]
	return ok
}

// Resource returns the resource stored at index.
func (s *SceneResourceSet[K, T]) Resource(index uint32) T {
	return s.resources[index]
}

// Resources returns a copy of the dense resource slice.
func (s *SceneResourceSet[K, T]) Resources() []T {
	return append([]T(nil), s.resources...)
}

func (s *SceneResourceSet[K, T]) Size() int {
	return len(s.resources)
}

// TakeResources drains the set and returns everything it held.
func (s *SceneResourceSet[K, T]) TakeResources() []T {
	resources := s.resources
	s.resources = nil
	clear(s.indices)
	return resources
}

func (s *SceneResourceSet[K, T]) Clear() {
	s.resources = s.resources[:0]
	clear(s.indices)
}
