package celltrack

// FilterTracks returns tracks whose length lies in [MinLength, MaxLength].
// Surviving tracks keep their ids. With DropBoundaryTracks set, tracks present in the first
// or the last usable frame are dropped as well since their true lifetime is unknown.
func FilterTracks(cfg Config, set *TrackSet) []*Track {
	kept := make([]*Track, 0, len(set.Tracks))
	for _, track := range set.Tracks {
		if keepTrack(cfg, track) {
			kept = append(kept, track)
		}
	}
	return kept
}

func keepTrack(cfg Config, track *Track) bool {
	n := track.Len()
	if n < cfg.MinLength || n > cfg.MaxLength {
		return false
	}
	if cfg.DropBoundaryTracks && (track.StartStatus == StartSeriesStart || track.EndStatus == EndSeriesEnd) {
		return false
	}
	return true
}
