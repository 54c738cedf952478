package containers

import "testing"

type fakeResource struct {
	id int
}

func (r fakeResource) IsValid() bool { return r.id != 0 }

func TestManagedResourceExpiresAfterTTL(t *testing.T) {
	const ttl = 3
	var m ManagedResource[fakeResource]
	m.Update(fakeResource{id: 1}, ttl)
	m.Update(fakeResource{id: 2}, ttl)

	for i := 0; i < ttl; i++ {
		if expired := m.TakeExpired(); len(expired) != 0 {
			t.Fatalf("frame %d: expired too early: %v", i, expired)
		}
		m.UpdateRetiredTTL()
	}

	expired := m.TakeExpired()
	if len(expired) != 1 || expired[0].id != 1 {
		t.Fatalf("expected exactly the previous resource, got %v", expired)
	}
	if again := m.TakeExpired(); len(again) != 0 {
		t.Fatalf("expired resource returned twice: %v", again)
	}
	if m.Resource.id != 2 {
		t.Fatalf("current resource changed to %d", m.Resource.id)
	}

	// Further frames never hand out the current resource.
	for i := 0; i < ttl+1; i++ {
		m.UpdateRetiredTTL()
		if expired := m.TakeExpired(); len(expired) != 0 {
			t.Fatalf("unexpected expiry %v", expired)
		}
	}
}

func TestManagedResourceFirstUpdateRetiresNothing(t *testing.T) {
	var m ManagedResource[fakeResource]
	m.Update(fakeResource{id: 5}, 1)
	if len(m.Retired()) != 0 {
		t.Fatalf("invalid initial resource was retired")
	}
	m.UpdateRetiredTTL()
	if len(m.TakeExpired()) != 0 {
		t.Fatal("nothing should expire")
	}
}

func TestManagedResourceRejectsZeroTTL(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero TTL")
		}
	}()
	var m ManagedResource[fakeResource]
	m.Update(fakeResource{id: 1}, 0)
}

func TestManagedResourceRetire(t *testing.T) {
	var m ManagedResource[fakeResource]
	m.Update(fakeResource{id: 1}, 1)
	m.Retire(fakeResource{id: 7}, 1)
	m.Retire(fakeResource{}, 1)

	if len(m.Retired()) != 1 {
		t.Fatalf("retired = %v, invalid resources must be ignored", m.Retired())
	}
	m.UpdateRetiredTTL()
	expired := m.TakeExpired()
	if len(expired) != 1 || expired[0].id != 7 {
		t.Fatalf("expired = %v", expired)
	}
	if m.Resource.id != 1 {
		t.Fatalf("current resource changed to %v", m.Resource)
	}
}
