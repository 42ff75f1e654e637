package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestFromContext_FallsBackToGlobal verifies a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, global, FromContext(context.Background()))
}

// TestToContext_Roundtrip verifies a logger stored in a context is returned as-is.
func TestToContext_Roundtrip(t *testing.T) {
	t.Parallel()

	l := zap.NewNop().Sugar()
	ctx := ToContext(context.Background(), l)

	require.Same(t, l, FromContext(ctx))
}

// TestWithName_DoesNotMutateParent ensures naming produces a new context logger.
func TestWithName_DoesNotMutateParent(t *testing.T) {
	t.Parallel()

	parent := ToContext(context.Background(), zap.NewNop().Sugar())
	child := WithName(parent, "acquire")

	require.NotSame(t, FromContext(parent), FromContext(child))
}
