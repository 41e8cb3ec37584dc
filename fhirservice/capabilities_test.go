package fhirservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

func testMeta() CapabilityMetadata {
	return CapabilityMetadata{
		Version:         fhir.DSTU2,
		SoftwareName:    "continua-demo",
		SoftwareVersion: "1.0",
		BaseAddress:     "http://continua.cloudapp.net/baseDstu2",
	}
}

func TestBuildCapabilityStatement_DescribesBoundSet(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(searchable{
		readOnly: readOnly{rt: "Patient"},
		ops:      []OperationDefinition{{Name: "everything", ResourceTypes: []string{"Observation"}}},
		params:   []fhir.SearchParamDecl{{Name: "name", Type: "string"}, {Name: "_id", Type: "token"}},
	})
	_ = reg.Register(readOnly{rt: "Observation"})
	sys := system{interactions: []fhir.SystemInteraction{fhir.InteractionHistorySystem, fhir.InteractionTransaction}}

	cs, err := BuildCapabilityStatement(reg, sys, testMeta())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cs.ResourceType != "Conformance" {
		t.Fatalf("resourceType = %s, want Conformance for DSTU2", cs.ResourceType)
	}
	if cs.FHIRVersion != "1.0.2" {
		t.Fatalf("fhirVersion = %s", cs.FHIRVersion)
	}
	if cs.Implementation.Description != DefaultDescription {
		t.Fatalf("description = %q", cs.Implementation.Description)
	}
	if got := cs.ResourceTypes(); !slices.Equal(got, []string{"Patient", "Observation"}) {
		t.Fatalf("resource types = %v", got)
	}
	patient := cs.Rest[0].Resource[0]
	if len(patient.Interaction) != 2 || patient.Interaction[0].Code != fhir.InteractionRead || patient.Interaction[1].Code != fhir.InteractionSearchType {
		t.Fatalf("patient interactions = %+v", patient.Interaction)
	}
	if patient.SearchParam[0].Name != "_id" {
		t.Fatalf("search params not sorted: %+v", patient.SearchParam)
	}
	if len(patient.Operation) != 1 || patient.Operation[0].Name != "everything" {
		t.Fatalf("operations = %+v", patient.Operation)
	}
	sysInts := cs.Rest[0].Interaction
	if len(sysInts) != 2 || sysInts[0].Code != fhir.InteractionTransaction || sysInts[1].Code != fhir.InteractionHistorySystem {
		t.Fatalf("system interactions = %+v", sysInts)
	}
}

func TestBuildCapabilityStatement_Deterministic(t *testing.T) {
	build := func() []byte {
		reg := NewRegistry()
		_ = reg.Register(searchable{readOnly: readOnly{rt: "Patient"}})
		_ = reg.Register(readOnly{rt: "Device"})
		cs, err := BuildCapabilityStatement(reg, system{interactions: []fhir.SystemInteraction{fhir.InteractionTransaction}}, testMeta())
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		b, err := json.Marshal(cs)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}
	if a, b := build(), build(); !bytes.Equal(a, b) {
		t.Fatalf("statements differ:\n%s\n%s", a, b)
	}
}

func TestBuildCapabilityStatement_Inconsistencies(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*Registry) SystemProvider
	}{
		{
			name: "operation names unbound type",
			setup: func(r *Registry) SystemProvider {
				_ = r.Register(searchable{readOnly: readOnly{rt: "Patient"}, ops: []OperationDefinition{{Name: "everything", ResourceTypes: []string{"Encounter"}}}})
				return system{}
			},
		},
		{
			name: "interaction without handler",
			setup: func(r *Registry) SystemProvider {
				_ = r.Register(liar{readOnly{rt: "Patient"}})
				return system{}
			},
		},
		{
			name: "system interaction without handler",
			setup: func(r *Registry) SystemProvider {
				return system{interactions: []fhir.SystemInteraction{fhir.InteractionBatch}}
			},
		},
		{
			name: "nil system provider",
			setup: func(r *Registry) SystemProvider {
				return nil
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			sys := tc.setup(reg)
			_, err := BuildCapabilityStatement(reg, sys, testMeta())
			if !errors.Is(err, ErrCapabilityInconsistency) {
				t.Fatalf("got %v, want ErrCapabilityInconsistency", err)
			}
			var ce *CapabilityError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CapabilityError, got %T", err)
			}
		})
	}
}

func TestBuildCapabilityStatement_R4(t *testing.T) {
	meta := testMeta()
	meta.Version = fhir.R4
	cs, err := BuildCapabilityStatement(NewRegistry(), system{}, meta)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cs.ResourceType != "CapabilityStatement" || cs.AcceptUnknown != "" {
		t.Fatalf("unexpected R4 header: %+v", cs)
	}
	if cs.Format[0] != "application/fhir+json" {
		t.Fatalf("format = %v", cs.Format)
	}
}

func TestAsError(t *testing.T) {
	if e := AsError(ErrResourceNotFound); e.Status != 404 {
		t.Fatalf("not found status = %d", e.Status)
	}
	if e := AsError(errors.New("boom")); e.Status != 500 || e.Diagnostics == "boom" {
		t.Fatalf("internal error leaked: %+v", e)
	}
	custom := InvalidRequest("bad %s", "input")
	if e := AsError(custom); e != custom || e.Status != 400 {
		t.Fatalf("custom error not preserved: %+v", e)
	}
}
