package worker

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/talk"
)

// StreamItem is one queued audio file.
type StreamItem struct {
	ID        uint64
	ChannelID int32
	FilePath  string
	Duration  time.Duration
	Announce  string
}

// Streamer drives the single streaming resource.
type Streamer interface {
	StartStream(item StreamItem) error
	StopStream() error
}

// StreamQueue plays queued items one at a time. It is owned by the worker
// goroutine and is not safe for concurrent use; timers and cleanup talk back
// to it only through the command channel.
type StreamQueue struct {
	queue   []StreamItem
	current *StreamItem
	seq     uint64

	streamer Streamer
	arm      func(d time.Duration, streamID uint64)
	discard  func(path string)
	log      *zerolog.Logger
}

// NewStreamQueue builds a queue. arm schedules a StopStreamingIf for the given
// stream after d; discard schedules deletion of a consumed file.
func NewStreamQueue(streamer Streamer, arm func(time.Duration, uint64), discard func(string), logger *zerolog.Logger) *StreamQueue {
	return &StreamQueue{
		streamer: streamer,
		arm:      arm,
		discard:  discard,
		log:      logger,
	}
}

// Enqueue appends a request and starts it right away if nothing is playing.
// It returns the assigned stream id.
func (q *StreamQueue) Enqueue(req core.StreamRequest) uint64 {
	id := q.Hold(req)
	if q.current == nil {
		q.StartNext()
	}
	return id
}

// Hold appends a request without starting anything. Used while the client
// cannot stream yet.
func (q *StreamQueue) Hold(req core.StreamRequest) uint64 {
	q.seq++
	item := StreamItem{
		ID:        q.seq,
		ChannelID: req.ChannelID,
		FilePath:  req.FilePath,
		Duration:  req.Duration,
		Announce:  req.Announce,
	}
	q.queue = append(q.queue, item)
	q.log.Info().Uint64("stream_id", item.ID).Str("path", item.FilePath).Int("queued", len(q.queue)).Msg("stream enqueued")
	return item.ID
}

// Resume starts the next item if nothing is playing.
func (q *StreamQueue) Resume() bool {
	if q.current != nil {
		return false
	}
	return q.StartNext()
}

// Reset forgets the current item after the connection dropped. Queued items
// are kept for the next session.
func (q *StreamQueue) Reset() {
	if q.current == nil {
		return
	}
	q.log.Info().Uint64("stream_id", q.current.ID).Msg("stream dropped with connection")
	q.discard(q.current.FilePath)
	q.current = nil
}

// StartNext pops items until one starts. Rejected files are discarded.
func (q *StreamQueue) StartNext() bool {
	for len(q.queue) > 0 {
		item := q.queue[0]
		q.queue = q.queue[1:]

		if err := q.streamer.StartStream(item); err != nil {
			q.log.Warn().Err(err).Uint64("stream_id", item.ID).Str("path", item.FilePath).Msg("stream rejected")
			q.discard(item.FilePath)
			continue
		}

		q.current = &item
		q.arm(item.Duration, item.ID)
		q.log.Info().Uint64("stream_id", item.ID).Dur("duration", item.Duration).Msg("stream started")
		return true
	}
	return false
}

// StopIf stops the current stream only if it is streamID, then moves on.
func (q *StreamQueue) StopIf(streamID uint64) bool {
	if q.current == nil || q.current.ID != streamID {
		return false
	}
	q.stopCurrent()
	q.StartNext()
	return true
}

// Skip stops whatever is playing and starts the next item.
func (q *StreamQueue) Skip() {
	q.stopCurrent()
	q.StartNext()
}

// Close stops playback and discards every file the queue still owns.
func (q *StreamQueue) Close() {
	q.stopCurrent()
	for _, item := range q.queue {
		q.discard(item.FilePath)
	}
	q.queue = nil
}

func (q *StreamQueue) stopCurrent() {
	if err := q.streamer.StopStream(); err != nil {
		q.log.Warn().Err(err).Msg("stop stream failed")
	}
	if q.current == nil {
		return
	}
	q.log.Info().Uint64("stream_id", q.current.ID).Msg("stream stopped")
	q.discard(q.current.FilePath)
	q.current = nil
}

// Current returns the playing item.
func (q *StreamQueue) Current() (StreamItem, bool) {
	if q.current == nil {
		return StreamItem{}, false
	}
	return *q.current, true
}

// Pending returns how many items wait behind the current one.
func (q *StreamQueue) Pending() int {
	return len(q.queue)
}

// clientStreamer plays stream items through a talk client.
type clientStreamer struct {
	client talk.Client
	opts   talk.PlaybackOptions
	log    *zerolog.Logger
}

// StartStream resolves the target channel at start time, posts the announce
// text and starts the file.
func (s *clientStreamer) StartStream(item StreamItem) error {
	channelID := item.ChannelID
	if channelID == 0 {
		channelID = s.client.MyChannelID()
	}
	if channelID != 0 && channelID != s.client.MyChannelID() {
		if err := s.client.JoinChannelByID(channelID, ""); err != nil {
			return fmt.Errorf("join channel %d: %w", channelID, err)
		}
	}

	if item.Announce != "" && channelID != 0 {
		if err := s.client.SendToChannel(channelID, item.Announce); err != nil {
			s.log.Warn().Err(err).Uint64("stream_id", item.ID).Msg("announce failed")
		}
	}

	if err := s.client.StartStreaming(item.FilePath, s.opts); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	return nil
}

func (s *clientStreamer) StopStream() error {
	return s.client.StopStreaming()
}
