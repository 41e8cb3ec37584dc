package memory

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patient(family string) fhir.Resource {
	return fhir.Resource{"resourceType": "Patient", "gender": family}
}

func TestResourceProvider_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	p := NewResourceProvider(store, "Patient")

	created, err := p.Create(ctx, nil, patient("female"))
	require.NoError(t, err)
	id := created.ID()
	require.NotEmpty(t, id)
	assert.Equal(t, "1", created.VersionID())

	got, err := p.Read(ctx, nil, id)
	require.NoError(t, err)
	assert.Equal(t, "female", got["gender"])

	updated, wasCreated, err := p.Update(ctx, nil, id, patient("male"))
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, "2", updated.VersionID())

	v1, err := p.VRead(ctx, nil, id, "1")
	require.NoError(t, err)
	assert.Equal(t, "female", v1["gender"])
	_, err = p.VRead(ctx, nil, id, "9")
	assert.ErrorIs(t, err, fhirservice.ErrResourceNotFound)

	hist, err := p.InstanceHistory(ctx, nil, id)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2", hist[0].VersionID(), "history is newest first")

	require.NoError(t, p.Delete(ctx, nil, id))
	_, err = p.Read(ctx, nil, id)
	assert.ErrorIs(t, err, fhirservice.ErrResourceGone)
	assert.ErrorIs(t, p.Delete(ctx, nil, "missing"), fhirservice.ErrResourceNotFound)

	// Update-as-create on a new id.
	_, wasCreated, err = p.Update(ctx, nil, "abc", patient("other"))
	require.NoError(t, err)
	assert.True(t, wasCreated)
}

func TestResourceProvider_RejectsMismatches(t *testing.T) {
	ctx := context.Background()
	p := NewResourceProvider(NewStore(), "Patient")

	_, err := p.Create(ctx, nil, fhir.Resource{"resourceType": "Observation"})
	var fe *fhirservice.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 400, fe.Status)

	_, _, err = p.Update(ctx, nil, "a", fhir.Resource{"resourceType": "Patient", "id": "b"})
	require.Error(t, err)
}

func TestResourceProvider_Search(t *testing.T) {
	ctx := context.Background()
	p := NewResourceProvider(NewStore(), "Patient")
	a, _ := p.Create(ctx, nil, patient("female"))
	b, _ := p.Create(ctx, nil, patient("male"))
	_, _ = p.Create(ctx, nil, patient("female"))

	all, err := p.Search(ctx, nil, url.Values{"_count": {"1"}})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	females, err := p.Search(ctx, nil, url.Values{"gender": {"female"}})
	require.NoError(t, err)
	assert.Len(t, females, 2)

	byID, err := p.Search(ctx, nil, url.Values{"_id": {a.ID() + "," + b.ID()}})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
}

func TestSystemProvider_TransactionIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	patients := NewResourceProvider(store, "Patient")
	sys := NewSystemProvider(store, patients)

	ok := &fhir.Bundle{Type: fhir.BundleTypeTransaction, Entry: []fhir.BundleEntry{
		{Resource: patient("female"), Request: &fhir.BundleEntryRequest{Method: "POST", URL: "Patient"}},
		{Resource: fhir.Resource{"resourceType": "Patient", "id": "p1"}, Request: &fhir.BundleEntryRequest{Method: "PUT", URL: "Patient/p1"}},
	}}
	out, err := sys.Transaction(ctx, nil, ok)
	require.NoError(t, err)
	assert.Equal(t, fhir.BundleTypeTransactionResponse, out.Type)
	require.Len(t, out.Entry, 2)
	assert.Equal(t, "201 Created", out.Entry[0].Response.Status)

	bad := &fhir.Bundle{Type: fhir.BundleTypeTransaction, Entry: []fhir.BundleEntry{
		{Resource: fhir.Resource{"resourceType": "Patient"}, Request: &fhir.BundleEntryRequest{Method: "PUT", URL: "Patient/p1"}},
		{Request: &fhir.BundleEntryRequest{Method: "GET", URL: "Patient/nope"}},
	}}
	_, err = sys.Transaction(ctx, nil, bad)
	assert.ErrorIs(t, err, fhirservice.ErrResourceNotFound)

	p1, err := patients.Read(ctx, nil, "p1")
	require.NoError(t, err)
	assert.Equal(t, "1", p1.VersionID(), "failed transaction must not leave a new version")

	hist, err := sys.SystemHistory(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestSystemProvider_BatchReportsPerEntry(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	sys := NewSystemProvider(store, ResourceProviders(store, "Patient")...)
	in := &fhir.Bundle{Type: fhir.BundleTypeBatch, Entry: []fhir.BundleEntry{
		{Resource: patient("female"), Request: &fhir.BundleEntryRequest{Method: "POST", URL: "Patient"}},
		{Request: &fhir.BundleEntryRequest{Method: "GET", URL: "Patient/nope"}},
		{Request: &fhir.BundleEntryRequest{Method: "PATCH", URL: "Patient/x"}},
	}}
	out, err := sys.Batch(ctx, nil, in)
	require.NoError(t, err)
	require.Len(t, out.Entry, 3)
	assert.Equal(t, "201 Created", out.Entry[0].Response.Status)
	assert.Equal(t, "404 Not Found", out.Entry[1].Response.Status)
	assert.Equal(t, "400 Bad Request", out.Entry[2].Response.Status)
	assert.NotNil(t, out.Entry[2].Response.Outcome)
}

func TestProvidersSatisfyCapabilityBuilder(t *testing.T) {
	store := NewStore()
	reg := fhirservice.NewRegistry()
	rps := ResourceProviders(store, "Patient", "Observation")
	for _, p := range rps {
		require.NoError(t, reg.Register(p))
	}
	cs, err := fhirservice.BuildCapabilityStatement(reg, NewSystemProvider(store, rps...), fhirservice.CapabilityMetadata{Version: fhir.DSTU2})
	require.NoError(t, err)
	assert.Len(t, cs.Rest[0].Resource[0].Interaction, 8)
	assert.Len(t, cs.Rest[0].Interaction, 3)
}

// readOnlyDevice declares read only.
type readOnlyDevice struct{}

func (readOnlyDevice) ResourceType() string { return "Device" }
func (readOnlyDevice) Interactions() []fhir.TypeInteraction {
	return []fhir.TypeInteraction{fhir.InteractionRead}
}

func TestSystemProvider_EntriesLimitedToBoundProviders(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	sys := NewSystemProvider(store, NewResourceProvider(store, "Patient"), readOnlyDevice{})

	tx := &fhir.Bundle{Type: fhir.BundleTypeTransaction, Entry: []fhir.BundleEntry{
		{Resource: patient("female"), Request: &fhir.BundleEntryRequest{Method: "POST", URL: "Patient"}},
		{Resource: fhir.Resource{"resourceType": "Medication"}, Request: &fhir.BundleEntryRequest{Method: "POST", URL: "Medication"}},
	}}
	_, err := sys.Transaction(ctx, nil, tx)
	require.ErrorIs(t, err, fhirservice.ErrProviderNotFound)
	assert.Equal(t, http.StatusNotFound, fhirservice.AsError(err).Status)

	hist, err := sys.SystemHistory(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, hist, "rejected transaction must not write")

	batch := &fhir.Bundle{Type: fhir.BundleTypeBatch, Entry: []fhir.BundleEntry{
		{Resource: fhir.Resource{"resourceType": "Medication"}, Request: &fhir.BundleEntryRequest{Method: "POST", URL: "Medication"}},
		{Resource: fhir.Resource{"resourceType": "Device"}, Request: &fhir.BundleEntryRequest{Method: "POST", URL: "Device"}},
		{Resource: patient("male"), Request: &fhir.BundleEntryRequest{Method: "POST", URL: "Patient"}},
	}}
	out, err := sys.Batch(ctx, nil, batch)
	require.NoError(t, err)
	require.Len(t, out.Entry, 3)
	assert.Equal(t, "404 Not Found", out.Entry[0].Response.Status)
	assert.Equal(t, "405 Method Not Allowed", out.Entry[1].Response.Status)
	assert.Equal(t, "201 Created", out.Entry[2].Response.Status)

	hist, err = sys.SystemHistory(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}
