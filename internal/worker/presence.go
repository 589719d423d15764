package worker

import (
	"sort"
	"sync"
)

// LiteUser is one connected talk-server user as tracked by the worker.
type LiteUser struct {
	ID          int32  `json:"id"`
	Nickname    string `json:"nickname"`
	Username    string `json:"username"`
	ChannelName string `json:"channel_name"`
}

// Presence indexes connected users by id and by username.
//
// Invariant: for every entry byUsername[name] == id, byID[id].Username == name.
// Both maps change inside the same critical section. When several sessions
// share a username the index points at the most recent one and is dropped
// only when that session goes away.
type Presence struct {
	mu         sync.RWMutex
	byID       map[int32]LiteUser
	byUsername map[string]int32
}

// NewPresence returns empty indexes.
func NewPresence() *Presence {
	return &Presence{
		byID:       make(map[int32]LiteUser),
		byUsername: make(map[string]int32),
	}
}

// Upsert inserts or replaces a user. The channel name is kept when the new
// record has none.
func (p *Presence) Upsert(u LiteUser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.byID[u.ID]; ok {
		if u.ChannelName == "" {
			u.ChannelName = old.ChannelName
		}
		p.unindexLocked(old)
	}
	p.byID[u.ID] = u
	if u.Username != "" {
		p.byUsername[u.Username] = u.ID
	}
}

// Rename updates nickname and username of a known user. It reports false if
// the user is unknown.
func (p *Presence) Rename(id int32, nickname, username string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.byID[id]
	if !ok {
		return false
	}
	p.unindexLocked(u)
	u.Nickname = nickname
	u.Username = username
	p.byID[id] = u
	if username != "" {
		p.byUsername[username] = id
	}
	return true
}

// SetChannel updates only the channel name of a known user.
func (p *Presence) SetChannel(id int32, channelName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.byID[id]
	if !ok {
		return false
	}
	u.ChannelName = channelName
	p.byID[id] = u
	return true
}

// Remove deletes a user and returns the removed record.
func (p *Presence) Remove(id int32) (LiteUser, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.byID[id]
	if !ok {
		return LiteUser{}, false
	}
	delete(p.byID, id)
	p.unindexLocked(u)
	return u, true
}

// unindexLocked drops the username entry if it points at u.
func (p *Presence) unindexLocked(u LiteUser) {
	if u.Username == "" {
		return
	}
	if id, ok := p.byUsername[u.Username]; ok && id == u.ID {
		delete(p.byUsername, u.Username)
		// fall back to another live session with the same username
		for otherID, other := range p.byID {
			if other.Username == u.Username && otherID != u.ID {
				p.byUsername[u.Username] = otherID
				break
			}
		}
	}
}

// Get returns a user by id.
func (p *Presence) Get(id int32) (LiteUser, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.byID[id]
	return u, ok
}

// ByUsername returns the session indexed for username.
func (p *Presence) ByUsername(username string) (LiteUser, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byUsername[username]
	if !ok {
		return LiteUser{}, false
	}
	u, ok := p.byID[id]
	return u, ok
}

// IsOnline reports whether a user with the given username is connected.
func (p *Presence) IsOnline(username string) bool {
	if username == "" {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byUsername[username]
	return ok
}

// Snapshot returns all users sorted by channel, then nickname.
func (p *Presence) Snapshot() []LiteUser {
	p.mu.RLock()
	users := make([]LiteUser, 0, len(p.byID))
	for _, u := range p.byID {
		users = append(users, u)
	}
	p.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].ChannelName != users[j].ChannelName {
			return users[i].ChannelName < users[j].ChannelName
		}
		if users[i].Nickname != users[j].Nickname {
			return users[i].Nickname < users[j].Nickname
		}
		return users[i].ID < users[j].ID
	})
	return users
}

// Len returns the number of connected users.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

// Clear drops every entry from both indexes.
func (p *Presence) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID = make(map[int32]LiteUser)
	p.byUsername = make(map[string]int32)
}

// consistent checks the index invariant. Used by tests.
func (p *Presence) consistent() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, id := range p.byUsername {
		u, ok := p.byID[id]
		if !ok || u.Username != name {
			return false
		}
	}
	for _, u := range p.byID {
		if u.Username == "" {
			continue
		}
		if _, ok := p.byUsername[u.Username]; !ok {
			return false
		}
	}
	return true
}
