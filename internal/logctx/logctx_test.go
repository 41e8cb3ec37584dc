package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{slog.NewJSONHandler(&buf, nil)}).With("component", "test")

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "GET", Path: "/Patient/1"})
	ctx = WithFHIRData(ctx, &FHIRData{Interaction: "read", ResourceType: "Patient", ID: "1"})
	log.InfoContext(ctx, "fhir.request")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	req, _ := rec["req"].(map[string]any)
	if req["id"] != "r1" || req["path"] != "/Patient/1" {
		t.Fatalf("req group = %v", rec["req"])
	}
	fd, _ := rec["fhir"].(map[string]any)
	if fd["interaction"] != "read" || fd["id"] != "1" {
		t.Fatalf("fhir group = %v", rec["fhir"])
	}
	if rec["component"] != "test" {
		t.Fatalf("WithAttrs lost wrapping: %v", rec)
	}
	if _, ok := rec["user"]; ok {
		t.Fatalf("unexpected user group")
	}
}
