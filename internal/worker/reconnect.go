package worker

import "time"

// ReconnectPolicy is an always-retry exponential backoff. The attempt counter
// resets only after a connection stayed up for at least the stability threshold.
type ReconnectPolicy struct {
	minDelay    time.Duration
	maxDelay    time.Duration
	stability   time.Duration
	attempts    int
	connectedAt time.Time
	now         func() time.Time
}

// NewReconnectPolicy builds a policy. maxDelay below minDelay is raised to minDelay.
func NewReconnectPolicy(minDelay, maxDelay, stability time.Duration) *ReconnectPolicy {
	if minDelay <= 0 {
		minDelay = time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &ReconnectPolicy{
		minDelay:  minDelay,
		maxDelay:  maxDelay,
		stability: stability,
		now:       time.Now,
	}
}

// MarkConnected records when the current connection came up.
func (p *ReconnectPolicy) MarkConnected() {
	p.connectedAt = p.now()
}

// MarkDisconnected closes the current connection window. The attempt counter
// is reset only if the window lasted long enough.
func (p *ReconnectPolicy) MarkDisconnected() {
	if !p.connectedAt.IsZero() && p.now().Sub(p.connectedAt) >= p.stability {
		p.attempts = 0
	}
	p.connectedAt = time.Time{}
}

// NextDelay returns min(minDelay*2^attempts, maxDelay) and counts the attempt.
func (p *ReconnectPolicy) NextDelay() time.Duration {
	delay := p.maxDelay
	if p.attempts < 32 {
		if d := p.minDelay << uint(p.attempts); d > 0 && d < p.maxDelay {
			delay = d
		}
	}
	p.attempts++
	return delay
}

// Attempts reports how many delays were handed out since the last reset.
func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}
