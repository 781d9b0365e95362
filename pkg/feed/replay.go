// pkg/feed/replay.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package feed

import (
	"fmt"
	"io"
	"time"

	"github.com/towercab/towerview/pkg/log"
	"github.com/towercab/towerview/pkg/util"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Track archives are a zstd-compressed msgpack stream: an archiveHeader
// record followed by one archiveFrame per observation fetch. Frame times
// are stored as offsets from the header's start time.

const archiveMagic = "towerview-tracks"
const archiveVersion = 1

type archiveHeader struct {
	Magic   string
	Version int
	Start   time.Time
}

type archiveFrame struct {
	Offset   time.Duration
	Aircraft []*Observation
}

///////////////////////////////////////////////////////////////////////////
// Recorder

// A Recorder writes successive observation sets to a track archive for
// later playback. It does not own the underlying writer; Close flushes the
// compressed stream but leaves closing the file to the caller.
type Recorder struct {
	zw     *zstd.Encoder
	enc    *msgpack.Encoder
	start  time.Time
	last   time.Time
	frames int
}

func NewRecorder(w io.Writer, start time.Time) (*Recorder, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}

	r := &Recorder{zw: zw, enc: msgpack.NewEncoder(zw), start: start}
	if err := r.enc.Encode(archiveHeader{Magic: archiveMagic, Version: archiveVersion, Start: start}); err != nil {
		return nil, fmt.Errorf("failed to encode archive header: %w", err)
	}
	return r, nil
}

// Record appends the given set as a frame. Calls with a set that has
// already been recorded (same fetch time) are no-ops, so it is safe to
// call this more often than the source updates.
func (r *Recorder) Record(set Set) error {
	if set.Fetched.IsZero() || !set.Fetched.After(r.last) {
		return nil
	}

	callsigns := util.SortedMapKeys(set.Current)
	frame := archiveFrame{
		Offset:   set.Fetched.Sub(r.start),
		Aircraft: util.MapSlice(callsigns, func(cs string) *Observation { return set.Current[cs] }),
	}
	if err := r.enc.Encode(frame); err != nil {
		return fmt.Errorf("failed to encode archive frame: %w", err)
	}

	r.last = set.Fetched
	r.frames++
	return nil
}

// Frames returns the number of frames recorded so far.
func (r *Recorder) Frames() int { return r.frames }

func (r *Recorder) Close() error {
	if err := r.zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// ReplaySource

// ReplaySource plays a track archive back on a virtual clock that starts
// at the archive's start time when the source is created and advances at
// a configurable multiple of wall-clock time. It implements Source, so
// the engine runs against a replay exactly as it does against the live
// network.
type ReplaySource struct {
	lg        *log.Logger
	rate      float32
	start     time.Time // archive start; the virtual clock's epoch
	wallStart time.Time
	frames    []archiveFrame

	mu  util.LoggingMutex
	idx int // frames[idx] is current; -1 before the first frame's time
	set Set
}

func NewReplaySource(r io.Reader, rate float32, lg *log.Logger) (*ReplaySource, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	dec := msgpack.NewDecoder(zr)

	var hdr archiveHeader
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("failed to decode archive header: %w", err)
	}
	if hdr.Magic != archiveMagic {
		return nil, fmt.Errorf("not a towerview track archive")
	}
	if hdr.Version != archiveVersion {
		return nil, fmt.Errorf("unsupported track archive version %d", hdr.Version)
	}

	var frames []archiveFrame
	for {
		var fr archiveFrame
		if err := dec.Decode(&fr); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode archive frame: %w", err)
		}
		frames = append(frames, fr)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("track archive has no frames")
	}

	if rate <= 0 {
		rate = 1
	}
	return &ReplaySource{
		lg:        lg,
		rate:      rate,
		start:     hdr.Start,
		wallStart: time.Now(),
		frames:    frames,
		idx:       -1,
	}, nil
}

// Now returns the current time on the archive's clock.
func (r *ReplaySource) Now() time.Time {
	return r.start.Add(time.Duration(float64(time.Since(r.wallStart)) * float64(r.rate)))
}

func (r *ReplaySource) CurrentSet() Set {
	vnow := r.Now()

	r.mu.Lock(r.lg)
	defer r.mu.Unlock(r.lg)

	advanced := false
	for r.idx+1 < len(r.frames) && !r.start.Add(r.frames[r.idx+1].Offset).After(vnow) {
		r.idx++
		advanced = true
	}
	if r.idx < 0 {
		return Set{}
	}

	if advanced {
		r.set = Set{
			Current: observationMap(r.frames[r.idx].Aircraft),
			Fetched: r.start.Add(r.frames[r.idx].Offset),
		}
		if r.idx > 0 {
			r.set.Previous = observationMap(r.frames[r.idx-1].Aircraft)
		}
	}
	return r.set
}

// Done reports whether the virtual clock has passed the final frame.
func (r *ReplaySource) Done() bool {
	return r.Now().After(r.start.Add(r.frames[len(r.frames)-1].Offset))
}

func (r *ReplaySource) Stop() {}

func observationMap(obs []*Observation) map[string]*Observation {
	m := make(map[string]*Observation, len(obs))
	for _, o := range obs {
		m[o.Callsign] = o
	}
	return m
}
