package containers

import "github.com/cockroachdb/errors"

// Validator is implemented by GPU resources that can be in a null state.
type Validator interface {
	IsValid() bool
}

type RetiredResource[T any] struct {
	Resource T
	ttl      int
}

// updateTTL counts down one frame and reports whether the resource must stay alive.
func (r *RetiredResource[T]) updateTTL() bool {
	if r.ttl <= 0 {
		panic(errors.AssertionFailedf("retired resource TTL already expired"))
	}
	r.ttl--
	return r.ttl > 0
}

func (r *RetiredResource[T]) TTL() int {
	return r.ttl
}

// ManagedResource is a current resource plus previously current ones that wait for in-flight frames to finish.
type ManagedResource[T Validator] struct {
	Resource T
	retired  []RetiredResource[T]
}

// Update installs resource as current and retires the previous one for ttl frames.
func (m *ManagedResource[T]) Update(resource T, ttl int) {
	if ttl <= 0 {
		panic(errors.AssertionFailedf("retire TTL must be positive, got %d", ttl))
	}
	if m.Resource.IsValid() {
		m.retired = append(m.retired, RetiredResource[T]{Resource: m.Resource, ttl: ttl})
	}
	m.Resource = resource
}

// Retire schedules a resource that was never current for destruction after ttl frames.
func (m *ManagedResource[T]) Retire(resource T, ttl int) {
	if ttl <= 0 {
		panic(errors.AssertionFailedf("retire TTL must be positive, got %d", ttl))
	}
	if resource.IsValid() {
		m.retired = append(m.retired, RetiredResource[T]{Resource: resource, ttl: ttl})
	}
}

// UpdateRetiredTTL decrements every retired entry that has not yet expired.
func (m *ManagedResource[T]) UpdateRetiredTTL() {
	for i := range m.retired {
		if m.retired[i].ttl > 0 {
			m.retired[i].updateTTL()
		}
	}
}

// TakeExpired removes and returns the retired resources whose TTL reached zero.
func (m *ManagedResource[T]) TakeExpired() []T {
	var expired []T
	kept := m.retired[:0]
	for _, r := range m.retired {
		if r.ttl == 0 {
			expired = append(expired, r.Resource)
		} else {
			kept = append(kept, r)
		}
	}
	clear(m.retired[len(kept):])
	m.retired = kept
	return expired
}

// Retired returns the resources still waiting for their TTL.
func (m *ManagedResource[T]) Retired() []T {
	resources := make([]T, 0, len(m.retired))
	for _, r := range m.retired {
		resources = append(resources, r.Resource)
	}
	return resources
}

func (m *ManagedResource[T]) IsValid() bool {
	return m.Resource.IsValid()
}

func (m *ManagedResource[T]) Reset() {
	var zero T
	m.Resource = zero
	m.retired = nil
}
