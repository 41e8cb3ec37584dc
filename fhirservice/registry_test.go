package fhirservice

import (
	"errors"
	"slices"
	"testing"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	for _, rt := range []string{"Patient", "Observation", "Device"} {
		if err := reg.Register(readOnly{rt: rt}); err != nil {
			t.Fatalf("register %s: %v", rt, err)
		}
	}
	if got, want := reg.ResourceTypes(), []string{"Patient", "Observation", "Device"}; !slices.Equal(got, want) {
		t.Fatalf("resource types = %v, want %v", got, want)
	}
	p, err := reg.Lookup("Observation")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.ResourceType() != "Observation" {
		t.Fatalf("lookup returned %s", p.ResourceType())
	}
	if _, err := reg.Lookup("Encounter"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("lookup unbound: got %v, want ErrProviderNotFound", err)
	}
}

func TestRegistry_DuplicateLeavesSetUnchanged(t *testing.T) {
	reg := NewRegistry()
	first := readOnly{rt: "Patient"}
	if err := reg.Register(first); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := reg.Register(searchable{readOnly: readOnly{rt: "Patient"}})
	if !errors.Is(err, ErrDuplicateBinding) {
		t.Fatalf("duplicate register: got %v, want ErrDuplicateBinding", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d after duplicate, want 1", reg.Len())
	}
	p, _ := reg.Lookup("Patient")
	if _, ok := p.(searchable); ok {
		t.Fatalf("duplicate replaced the original binding")
	}
}

func TestRegistry_InvalidBinding(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(nil); !errors.Is(err, ErrInvalidBinding) {
		t.Fatalf("nil provider: got %v", err)
	}
	if err := reg.Register(readOnly{}); !errors.Is(err, ErrInvalidBinding) {
		t.Fatalf("empty resource type: got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("len = %d, want 0", reg.Len())
	}
}

func TestRegistry_Freeze(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(readOnly{rt: "Patient"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()
	reg.Freeze()
	if !reg.Frozen() {
		t.Fatalf("expected frozen registry")
	}
	if err := reg.Register(readOnly{rt: "Observation"}); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("register after freeze: got %v, want ErrRegistryFrozen", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d, want 1", reg.Len())
	}
}

func TestRegistry_BindingsIsACopy(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(readOnly{rt: "Patient"})
	b := reg.Bindings()
	b[0].ResourceType = "Mutated"
	if reg.Bindings()[0].ResourceType != "Patient" {
		t.Fatalf("Bindings exposed internal state")
	}
}
