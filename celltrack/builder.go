package celltrack

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// StartStatus tells how a track began
type StartStatus uint8

const (
	// StartNew is a track whose first object had no incoming link
	StartNew StartStatus = iota + 1
	// StartSplit is a track forked off another track (see Track.StartSplit)
	StartSplit
	// StartAfterGap is a track beginning right after missing, corrupt or too distant frames
	StartAfterGap
	// StartSeriesStart is a track present in the first usable frame
	StartSeriesStart
)

func (status StartStatus) String() string {
	switch status {
	case StartNew:
		return "new"
	case StartSplit:
		return "split"
	case StartAfterGap:
		return "after-gap"
	case StartSeriesStart:
		return "series-start"
	default:
		return "unknown"
	}
}

// EndStatus tells how a track terminated
type EndStatus uint8

const (
	// EndOpen is a track still being extended
	EndOpen EndStatus = iota
	// EndDissipated is a track whose last object had no usable outgoing link
	EndDissipated
	// EndMerged is a track absorbed by another track (see Track.EndMerge)
	EndMerged
	// EndGap is a track cut by missing, corrupt or too distant frames
	EndGap
	// EndSeriesEnd is a track present in the last usable frame
	EndSeriesEnd
)

func (status EndStatus) String() string {
	switch status {
	case EndOpen:
		return "open"
	case EndDissipated:
		return "dissipated"
	case EndMerged:
		return "merged"
	case EndGap:
		return "gap"
	case EndSeriesEnd:
		return "series-end"
	default:
		return "unknown"
	}
}

// Member is a single object of a track
type Member struct {
	Frame  int
	Time   time.Time
	Object int
}

// Track is a persistent identity of one physical cell
type Track struct {
	ID int
	// Ordered by frame, one object per frame
	Members []Member
	// Track this one split from, 0 when none
	StartSplit int
	// Track this one merged into, 0 when none
	EndMerge    int
	StartStatus StartStatus
	EndStatus   EndStatus
}

// Len returns number of objects in track
func (track *Track) Len() int {
	return len(track.Members)
}

func (track *Track) StartTime() time.Time {
	return track.Members[0].Time
}

func (track *Track) EndTime() time.Time {
	return track.Members[len(track.Members)-1].Time
}

// Duration returns number of members times frame interval
func (track *Track) Duration(interval time.Duration) time.Duration {
	return time.Duration(len(track.Members)) * interval
}

// FrameInfo describes a frame as seen by the graph builder
type FrameInfo struct {
	Index int
	// Position of frame in its FrameSource
	Source int
	Time   time.Time
	// False when frame is unreadable or corrupt
	Usable bool
	// Number of object ids
	Objects int
	// Pixel count of object id at index id-1. Ids without pixels are not objects and get no track.
	// Nil means every id has pixels
	Areas []int
}

// hasPixels reports whether object id is present in the label mask
func (info *FrameInfo) hasPixels(object int) bool {
	if info.Areas == nil {
		return true
	}
	return object <= len(info.Areas) && info.Areas[object-1] > 0
}

// TrackSet is the complete outcome of graph assembly
type TrackSet struct {
	// Tracks[i].ID == i+1
	Tracks []*Track
	// assignment[frame][object-1] is track id, 0 when object was not tracked
	assignment [][]int
}

// Get returns track by id or nil
func (set *TrackSet) Get(id int) *Track {
	if id < 1 || id > len(set.Tracks) {
		return nil
	}
	return set.Tracks[id-1]
}

// TrackOf returns id of track holding object of frame, 0 when there is none
func (set *TrackSet) TrackOf(frame, object int) int {
	if frame < 0 || frame >= len(set.assignment) {
		return 0
	}
	row := set.assignment[frame]
	if object < 1 || object > len(row) {
		return 0
	}
	return row[object-1]
}

// graphBuilder is the sequential reducer over time-ordered pairs. It exclusively owns open tracks.
type graphBuilder struct {
	cfg    Config
	frames []FrameInfo
	set    *TrackSet
}

// BuildTracks assembles pairwise links into global tracks.
// pairs[i] must hold links between frames[i] and frames[i+1].
func BuildTracks(cfg Config, frames []FrameInfo, pairs []PairLinks) (*TrackSet, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	if len(pairs) != len(frames)-1 {
		return nil, errors.Errorf("expected %d frame pairs, got %d", len(frames)-1, len(pairs))
	}
	for i := 1; i < len(frames); i++ {
		if !frames[i].Time.After(frames[i-1].Time) {
			return nil, errors.Wrapf(ErrUnsortedFrames, "frame %d at %s does not follow frame %d at %s",
				i, frames[i].Time.Format(time.RFC3339), i-1, frames[i-1].Time.Format(time.RFC3339))
		}
	}
	builder := graphBuilder{
		cfg:    cfg,
		frames: frames,
		set: &TrackSet{
			Tracks:     make([]*Track, 0),
			assignment: make([][]int, len(frames)),
		},
	}
	lastUsable := -1
	for t := range frames {
		if frames[t].Usable {
			lastUsable = t
		}
	}
	seenUsable := false
	for t := range frames {
		if !frames[t].Usable {
			// Tracks of the last usable frame end with the series, not with a gap
			if t > 0 && t <= lastUsable {
				builder.closeFrame(t-1, EndGap)
			}
			continue
		}
		builder.set.assignment[t] = make([]int, frames[t].Objects)
		linked := t > 0 && frames[t-1].Usable && pairs[t-1].Gap == GapNone
		if !linked {
			if t > 0 {
				builder.closeFrame(t-1, EndGap)
			}
			status := StartAfterGap
			if !seenUsable {
				status = StartSeriesStart
			}
			for object := 1; object <= frames[t].Objects; object++ {
				if frames[t].hasPixels(object) {
					builder.startTrack(t, object, status, 0)
				}
			}
		} else {
			if err := builder.advance(t, pairs[t-1]); err != nil {
				return nil, err
			}
		}
		seenUsable = true
	}
	if lastUsable >= 0 {
		builder.closeFrame(lastUsable, EndSeriesEnd)
	}
	return builder.set, nil
}

func (builder *graphBuilder) startTrack(frame, object int, status StartStatus, parent int) {
	track := &Track{
		ID:          len(builder.set.Tracks) + 1,
		Members:     []Member{{Frame: frame, Time: builder.frames[frame].Time, Object: object}},
		StartSplit:  parent,
		StartStatus: status,
	}
	builder.set.Tracks = append(builder.set.Tracks, track)
	builder.set.assignment[frame][object-1] = track.ID
}

func (builder *graphBuilder) extendTrack(track *Track, frame, object int) error {
	if len(track.Members)+1 > builder.cfg.MaxTrackObjects {
		return &TrackLimitError{
			TrackID: track.ID,
			Frame:   frame,
			Time:    builder.frames[frame].Time,
			Limit:   builder.cfg.MaxTrackObjects,
		}
	}
	track.Members = append(track.Members, Member{Frame: frame, Time: builder.frames[frame].Time, Object: object})
	builder.set.assignment[frame][object-1] = track.ID
	return nil
}

// closeFrame terminates every still open track whose last object lies in frame
func (builder *graphBuilder) closeFrame(frame int, status EndStatus) {
	for _, id := range builder.set.assignment[frame] {
		if id == 0 {
			continue
		}
		track := builder.set.Get(id)
		if track.EndStatus == EndOpen && track.Members[len(track.Members)-1].Frame == frame {
			track.EndStatus = status
		}
	}
}

// advance assigns objects of frame t using links from frame t-1
func (builder *graphBuilder) advance(t int, pair PairLinks) error {
	prev := t - 1
	nPrev := builder.frames[prev].Objects
	nCurr := builder.frames[t].Objects

	outgoing := make([][]Link, nPrev)
	incoming := make([][]Link, nCurr)
	for _, link := range pair.Links {
		if link.Source < 1 || link.Source > nPrev || link.Target < 1 || link.Target > nCurr {
			return errors.Errorf("link %d->%d between frames %d and %d refers to unknown object", link.Source, link.Target, prev, t)
		}
		outgoing[link.Source-1] = append(outgoing[link.Source-1], link)
		incoming[link.Target-1] = append(incoming[link.Target-1], link)
	}

	// Best continuation of every source: highest weight, then lowest target id
	best := make([]int, nPrev)
	for i, links := range outgoing {
		sort.SliceStable(links, func(a, b int) bool {
			if links[a].Weight != links[b].Weight {
				return links[a].Weight > links[b].Weight
			}
			return links[a].Target < links[b].Target
		})
		if len(links) > 0 {
			best[i] = links[0].Target
		}
	}

	for target := 1; target <= nCurr; target++ {
		links := incoming[target-1]
		if len(links) == 0 {
			if builder.frames[t].hasPixels(target) {
				builder.startTrack(t, target, StartNew, 0)
			}
			continue
		}
		candidates := make([]*Track, 0, len(links))
		for _, link := range links {
			if best[link.Source-1] == target {
				candidates = append(candidates, builder.set.Get(builder.set.TrackOf(prev, link.Source)))
			}
		}
		if len(candidates) == 0 {
			// Only secondary links: the target is a split off the strongest contributor
			sort.SliceStable(links, func(a, b int) bool {
				if links[a].Weight != links[b].Weight {
					return links[a].Weight > links[b].Weight
				}
				return links[a].Source < links[b].Source
			})
			parent := builder.set.TrackOf(prev, links[0].Source)
			builder.startTrack(t, target, StartSplit, parent)
			continue
		}
		// Longest track so far keeps identity, ties go to the lowest id
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].Len() != candidates[b].Len() {
				return candidates[a].Len() > candidates[b].Len()
			}
			return candidates[a].ID < candidates[b].ID
		})
		winner := candidates[0]
		for _, loser := range candidates[1:] {
			loser.EndStatus = EndMerged
			loser.EndMerge = winner.ID
		}
		if err := builder.extendTrack(winner, t, target); err != nil {
			return err
		}
	}
	builder.closeFrame(prev, EndDissipated)
	return nil
}
