package analyzers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalContext_MirrorsDeadline(t *testing.T) {
	analyzerCtx, cancelAnalyzer := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelAnalyzer()

	runCtx, cancel := evalContext(analyzerCtx, context.Background())
	defer cancel()

	deadline, ok := runCtx.Deadline()
	require.True(t, ok, "analyzer deadline must carry over")
	expected, _ := analyzerCtx.Deadline()
	assert.Equal(t, expected, deadline)

	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context did not expire with the analyzer deadline")
	}
}

func TestEvalContext_MirrorsCancellation(t *testing.T) {
	tabCtx, cancelTab := context.WithCancel(context.Background())
	defer cancelTab()

	analyzerCtx, cancelAnalyzer := context.WithCancel(context.Background())

	runCtx, cancel := evalContext(analyzerCtx, tabCtx)
	defer cancel()

	require.NoError(t, runCtx.Err())
	cancelAnalyzer()

	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context not cancelled with the analyzer context")
	}

	// The tab itself must survive; only the derived context expires
	assert.NoError(t, tabCtx.Err())
}

func TestEvalContext_FollowsTab(t *testing.T) {
	tabCtx, cancelTab := context.WithCancel(context.Background())

	runCtx, cancel := evalContext(context.Background(), tabCtx)
	defer cancel()

	cancelTab()
	assert.Error(t, runCtx.Err())
}
