package auditcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithIPAddress(ctx, "10.0.0.1")
	ctx = WithUserAgent(ctx, "scanner/1.0")
	ctx = WithActor(ctx, "VENDOR", "42")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "10.0.0.1", IPAddressFromContext(ctx))
	assert.Equal(t, "scanner/1.0", UserAgentFromContext(ctx))

	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "VENDOR", actorType)
	assert.Equal(t, "42", actorID)
}

func TestEmptyContext(t *testing.T) {
	actorType, actorID := ActorFromContext(context.Background())
	assert.Empty(t, actorType)
	assert.Empty(t, actorID)
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
