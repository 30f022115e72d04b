package relay

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestStaticAccess(t *testing.T) {
	access := &StaticAccess{
		Owners:        map[string]string{"b1": "alice"},
		Collaborators: map[string]map[string]bool{"b1": {"bob": true}},
	}
	ctx := context.Background()

	ok, err := access.Allowed(ctx, "b1", "alice")
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)

	ok, _ = access.Allowed(ctx, "b1", "bob")
	assert.Equal(t, ok, true)

	ok, _ = access.Allowed(ctx, "b1", "mallory")
	assert.Equal(t, ok, false)

	// Rooms without a registered board are open.
	ok, _ = access.Allowed(ctx, "scratch", "anyone")
	assert.Equal(t, ok, true)
}
