package tenancy

import (
	"context"
	"testing"
)

func TestTenantIDContextRoundTrip(t *testing.T) {
	ctx := WithTenantID(context.Background(), "tenant-1")
	got, ok := TenantIDFromContext(ctx)
	if !ok || got != "tenant-1" {
		t.Fatalf("expected tenant-1, got %q ok=%v", got, ok)
	}
	if _, ok := TenantIDFromContext(context.Background()); ok {
		t.Fatalf("expected no tenant in empty context")
	}
	if _, ok := TenantIDFromContext(WithTenantID(context.Background(), "")); ok {
		t.Fatalf("empty tenant id should not be reported")
	}
}
