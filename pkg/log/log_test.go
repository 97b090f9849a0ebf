package log

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	fallback := slog.Default()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := fallback.With("lead_id", "l1")
	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))
}

func TestWithModule(t *testing.T) {
	Setup("debug", "json")
	assert.NotNil(t, WithModule("flow"))
}
