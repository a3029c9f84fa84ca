package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntoAndFrom_RoundTrips(t *testing.T) {
	tcx := Context{TenantID: "tenant-a", ActorID: "agent-1"}

	ctx := Into(context.Background(), tcx)
	got, ok := From(ctx)
	require.True(t, ok)
	assert.Equal(t, tcx, got)
}

func TestFrom_MissingContext(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
}

func TestSystem_HasNoActor(t *testing.T) {
	tcx := System("tenant-a")
	assert.Equal(t, "tenant-a", tcx.TenantID)
	assert.Empty(t, tcx.ActorID)
}
