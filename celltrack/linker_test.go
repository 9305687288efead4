package celltrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlapFraction(t *testing.T) {
	assert.InDelta(t, 0.5, OverlapFraction(4, 16, 8), eps)
	assert.InDelta(t, 0.5, OverlapFraction(4, 8, 16), eps)
	assert.InDelta(t, 1.0, OverlapFraction(8, 8, 8), eps)
	assert.Equal(t, 0.0, OverlapFraction(0, 8, 8))
	assert.Equal(t, 0.0, OverlapFraction(3, 0, 8))
}

func TestLinkFramesKnownIntersection(t *testing.T) {
	cfg := testConfig()
	// 16 pixels object against 8 pixels object sharing a 2x2 block
	a := paintFrame(frameAt(0), 10, 10, NewRect(0, 0, 4, 4))
	b := paintFrame(frameAt(1), 10, 10, NewRect(2, 2, 4, 2))
	a.Index, b.Index = 0, 1

	forward := LinkFrames(cfg, a, b)
	require.Equal(t, GapNone, forward.Gap)
	require.Len(t, forward.Links, 1)
	assert.InDelta(t, 0.5, forward.Links[0].Weight, eps)
	assert.Equal(t, 1, forward.Links[0].Source)
	assert.Equal(t, 1, forward.Links[0].Target)
	assert.Equal(t, 0, forward.Links[0].SourceFrame)
	assert.Equal(t, 1, forward.Links[0].TargetFrame)
	assert.Equal(t, frameAt(1), forward.Links[0].TargetTime)

	// Same weight regardless of direction
	b.Time, a.Time = frameAt(0), frameAt(1)
	backward := LinkFrames(cfg, b, a)
	require.Len(t, backward.Links, 1)
	assert.InDelta(t, forward.Links[0].Weight, backward.Links[0].Weight, eps)
}

func TestLinkFramesThreshold(t *testing.T) {
	cfg := testConfig()
	// 4 of 16 pixels shared
	a := paintFrame(frameAt(0), 10, 10, NewRect(0, 0, 4, 4))
	b := paintFrame(frameAt(1), 10, 10, NewRect(3, 0, 4, 4))

	res := LinkFrames(cfg, a, b)
	assert.Empty(t, res.Links)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.BelowThreshold)

	cfg.OverlapThreshold = 0.25
	res = LinkFrames(cfg, a, b)
	require.Len(t, res.Links, 1)
	assert.InDelta(t, 0.25, res.Links[0].Weight, eps)
}

func TestLinkFramesFanOutCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLinks = 2
	// One wide object fully covering three small ones: all links have weight 1
	a := paintFrame(frameAt(0), 12, 4, NewRect(0, 0, 10, 2))
	b := paintFrame(frameAt(1), 12, 4, NewRect(8, 0, 2, 2), NewRect(0, 0, 2, 2), NewRect(4, 0, 2, 2))

	res := LinkFrames(cfg, a, b)
	require.Len(t, res.Links, 2)
	assert.Equal(t, 1, res.Links[0].Target)
	assert.Equal(t, 2, res.Links[1].Target)
	assert.Equal(t, 1, res.TruncatedObjects)
	assert.Equal(t, 1, res.DroppedLinks)
}

func TestLinkFramesOrdersByWeight(t *testing.T) {
	cfg := testConfig()
	a := paintFrame(frameAt(0), 12, 4, NewRect(0, 0, 8, 2))
	// Target 1 covered by half, target 2 fully
	b := paintFrame(frameAt(1), 12, 4, NewRect(6, 0, 4, 2), NewRect(0, 0, 2, 2))

	res := LinkFrames(cfg, a, b)
	require.Len(t, res.Links, 2)
	assert.Equal(t, 2, res.Links[0].Target)
	assert.InDelta(t, 1.0, res.Links[0].Weight, eps)
	assert.Equal(t, 1, res.Links[1].Target)
	assert.InDelta(t, 0.5, res.Links[1].Weight, eps)
	assert.Zero(t, res.TruncatedObjects)
}

func TestLinkFramesGaps(t *testing.T) {
	cfg := testConfig()
	a := paintFrame(frameAt(0), 6, 6, NewRect(0, 0, 3, 3))

	t.Run("time gap", func(t *testing.T) {
		b := paintFrame(frameAt(3), 6, 6, NewRect(0, 0, 3, 3))
		res := LinkFrames(cfg, a, b)
		assert.Equal(t, GapTimeExceeded, res.Gap)
		assert.Empty(t, res.Links)
	})

	t.Run("exactly timegap apart", func(t *testing.T) {
		b := paintFrame(a.Time.Add(cfg.TimeGap), 6, 6, NewRect(0, 0, 3, 3))
		res := LinkFrames(cfg, a, b)
		assert.Equal(t, GapNone, res.Gap)
		assert.Len(t, res.Links, 1)
	})

	t.Run("corrupt target", func(t *testing.T) {
		b := paintFrame(frameAt(1), 6, 6, NewRect(0, 0, 3, 3))
		b.MissingFraction = 0.5
		res := LinkFrames(cfg, a, b)
		assert.Equal(t, GapCorrupt, res.Gap)
		assert.Empty(t, res.Links)
	})

	t.Run("corrupt source", func(t *testing.T) {
		c := paintFrame(frameAt(0), 6, 6, NewRect(0, 0, 3, 3))
		c.MissingFraction = 0.21
		b := paintFrame(frameAt(1), 6, 6, NewRect(0, 0, 3, 3))
		res := LinkFrames(cfg, c, b)
		assert.Equal(t, GapCorrupt, res.Gap)
	})
}

func TestLinkFramesDoesNotMutate(t *testing.T) {
	cfg := testConfig()
	a := paintFrame(frameAt(0), 6, 6, NewRect(0, 0, 3, 3))
	b := paintFrame(frameAt(1), 6, 6, NewRect(1, 1, 3, 3))
	labelsA := append([]int32(nil), a.Labels...)
	areasB := append([]int(nil), b.Areas...)

	_ = LinkFrames(cfg, a, b)
	assert.Equal(t, labelsA, a.Labels)
	assert.Equal(t, areasB, b.Areas)
	assert.Equal(t, time.Duration(0), b.Time.Sub(frameAt(1)))
}
