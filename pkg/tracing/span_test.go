package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "job", "job-42")
	assert.Same(t, root, SpanFromContext(ctx))

	_, extract := StartChildSpan(ctx, "extract")
	extract.SetAttr("extractor", "toeplitz")
	time.Sleep(2 * time.Millisecond)
	extract.End()
	first := extract.Duration
	extract.End()
	assert.Equal(t, first, extract.Duration, "second End is ignored")

	_, publish := StartChildSpan(ctx, "publish")
	publish.End()
	root.End()

	assert.Equal(t, "job-42", extract.TraceID)
	require.Len(t, root.Children, 2)
	stages := root.Stages()
	assert.GreaterOrEqual(t, stages["extract"], 2*time.Millisecond)
	assert.Contains(t, stages, "publish")

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "extractor=toeplitz")
	assert.Contains(t, lines[1], "depth=1")
}

func TestChildWithoutParent(t *testing.T) {
	ctx, s := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, s.TraceID)
	assert.Same(t, s, SpanFromContext(ctx))
	assert.Nil(t, SpanFromContext(context.Background()))
}
