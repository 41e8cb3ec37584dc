package redis

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
	"github.com/jamesagnew/continua-demo-fhir-server/paging/pagingtest"
	"github.com/joeshaw/envdecode"
)

func TestRedisController(t *testing.T) {
	// Quick availability check to allow graceful skip in environments without Redis
	c, err := NewFromEnv(context.Background())
	if err != nil {
		t.Skipf("skipping redis paging tests: %v", err)
		return
	}
	_ = c.Close()

	pagingtest.RunControllerTests(t, func(t *testing.T, limits paging.Limits) paging.Controller {
		var cfg Config
		_ = envdecode.Decode(&cfg)
		cfg.KeyPrefix = "fhir:paging:test:" + uuid.NewString() + ":"
		cfg.Limits = limits
		c, err := New(context.Background(), cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}
