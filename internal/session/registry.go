package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"sudoq/internal/flog"
)

// Registry maps opaque tokens to live sessions. Idle expiry rides on the
// cache TTL: every successful lookup refreshes it, so a session whose
// last activity is older than the idle window becomes unreachable and is
// closed by the eviction sweep.
type Registry struct {
	cache *gocache.Cache
}

func NewRegistry(idle time.Duration) *Registry {
	sweep := idle
	if sweep > time.Minute {
		sweep = time.Minute
	}
	c := gocache.New(idle, sweep)
	c.OnEvicted(func(token string, v interface{}) {
		sess := v.(*Session)
		if !sess.IsClosed() {
			flog.Debugf("session %s: evicted", token)
		}
		sess.Close()
	})
	return &Registry{cache: c}
}

// Put registers the session under a fresh 16-byte token, returned as 32
// lowercase hex characters.
func (r *Registry) Put(s *Session) (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw[:])
	s.token = token
	r.cache.Set(token, s, gocache.DefaultExpiration)
	return token, nil
}

// Get resolves a token and refreshes its idle window. Closed or expired
// sessions are reported as missing.
func (r *Registry) Get(token string) (*Session, bool) {
	v, ok := r.cache.Get(token)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	if sess.IsClosed() {
		r.cache.Delete(token)
		return nil, false
	}
	r.cache.SetDefault(token, sess)
	return sess, true
}

// Remove tears the session down and invalidates its token.
func (r *Registry) Remove(token string) {
	r.cache.Delete(token)
}

// Len counts registered sessions, expired ones included until swept.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
