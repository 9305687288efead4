package celltrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// trackOfLength creates track with n members starting at frame 0
func trackOfLength(id, n int) *Track {
	track := &Track{ID: id, StartStatus: StartNew, EndStatus: EndDissipated}
	for i := 0; i < n; i++ {
		track.Members = append(track.Members, Member{Frame: i, Time: frameAt(i), Object: 1})
	}
	return track
}

func TestFilterTracksInclusiveRange(t *testing.T) {
	cfg := testConfig()
	cfg.MinLength = 2
	cfg.MaxLength = 4
	set := &TrackSet{}
	for n := 1; n <= 5; n++ {
		set.Tracks = append(set.Tracks, trackOfLength(n, n))
	}

	kept := FilterTracks(cfg, set)
	ids := make([]int, 0, len(kept))
	for _, track := range kept {
		ids = append(ids, track.ID)
	}
	// Ids are not renumbered
	assert.Equal(t, []int{2, 3, 4}, ids)
}

func TestFilterTracksDropBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.DropBoundaryTracks = true

	first := trackOfLength(1, 3)
	first.StartStatus = StartSeriesStart
	last := trackOfLength(2, 3)
	last.EndStatus = EndSeriesEnd
	afterGap := trackOfLength(3, 3)
	afterGap.StartStatus = StartAfterGap
	inner := trackOfLength(4, 3)
	set := &TrackSet{Tracks: []*Track{first, last, afterGap, inner}}

	kept := FilterTracks(cfg, set)
	assert.Equal(t, []*Track{afterGap, inner}, kept)

	cfg.DropBoundaryTracks = false
	assert.Len(t, FilterTracks(cfg, set), 4)
}
