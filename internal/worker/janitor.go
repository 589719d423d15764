package worker

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Janitor deletes played stream files in the background. Failures are retried
// a bounded number of times and then logged; they never reach the caller.
type Janitor struct {
	grace    time.Duration
	attempts int
	backoff  time.Duration
	remove   func(string) error
	log      *zerolog.Logger
}

// NewJanitor builds a janitor. attempts below 1 means a single try.
func NewJanitor(grace time.Duration, attempts int, backoff time.Duration, logger *zerolog.Logger) *Janitor {
	if attempts < 1 {
		attempts = 1
	}
	return &Janitor{
		grace:    grace,
		attempts: attempts,
		backoff:  backoff,
		remove:   os.Remove,
		log:      logger,
	}
}

// Schedule removes path on a detached goroutine after the grace delay.
func (j *Janitor) Schedule(path string) {
	if path == "" {
		return
	}
	go j.run(path)
}

func (j *Janitor) run(path string) {
	// let the client release its file handle first
	time.Sleep(j.grace)

	for attempt := 1; attempt <= j.attempts; attempt++ {
		err := j.remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			j.log.Debug().Str("path", path).Int("attempt", attempt).Msg("stream file removed")
			return
		}
		j.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("remove stream file failed")
		if attempt < j.attempts {
			time.Sleep(j.backoff)
		}
	}
	j.log.Error().Str("path", path).Int("attempts", j.attempts).Msg("giving up on stream file removal")
}
