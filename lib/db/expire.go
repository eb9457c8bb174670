package db

import "time"

// Expired keys are removed lazily on access and additionally by the active
// cycle, which samples a few deadline-carrying keys per database and keeps
// going while the expired fraction stays high.

const (
	// activeExpireSamples is the number of keys sampled per database and
	// iteration of the active cycle.
	activeExpireSamples = 20

	// activeExpireTimeLimit bounds one active cycle.
	activeExpireTimeLimit = 25 * time.Millisecond
)

// nowMillis is replaceable in tests.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}

// --------------------------------------------------------------------------
// Deadlines
// --------------------------------------------------------------------------

// SetExpire attaches a unix millisecond deadline to an existing key. It
// returns false when the key does not exist.
func (db *DB) SetExpire(key string, at int64) bool {
	if !db.Exists(key) {
		return false
	}
	db.expires.Set(key, at)
	return true
}

// GetExpire returns the deadline of the key, or -1 when the key has none or
// does not exist.
func (db *DB) GetExpire(key string) int64 {
	if at, ok := db.expires.Get(key); ok {
		return at
	}
	return -1
}

// RemoveExpire drops the deadline of the key, keeping the value. It returns
// false when the key carried no deadline.
func (db *DB) RemoveExpire(key string) bool {
	return db.expires.Delete(key)
}

// TTL returns the remaining lifetime of the key in milliseconds, -1 for
// keys without a deadline and -2 for missing keys.
func (db *DB) TTL(key string) int64 {
	if !db.Exists(key) {
		return -2
	}
	at := db.GetExpire(key)
	if at < 0 {
		return -1
	}
	ttl := at - nowMillis()
	if ttl < 0 {
		ttl = 0
	}
	return ttl
}

// --------------------------------------------------------------------------
// Lazy expiration
// --------------------------------------------------------------------------

// isExpired reports whether the key carries a deadline in the past.
func (db *DB) isExpired(key string) bool {
	at, ok := db.expires.Get(key)
	return ok && nowMillis() > at
}

// expireIfNeeded deletes the key when its deadline has passed and reports
// whether it did. During a snapshot restore deadlines are left alone so the
// loaded state stays complete.
func (db *DB) expireIfNeeded(key string) bool {
	if db.srv.loading || !db.isExpired(key) {
		return false
	}
	statExpiredKeys.Inc()
	db.srv.AddDirty(1)
	db.Delete(key)
	return true
}

// --------------------------------------------------------------------------
// Active expiration
// --------------------------------------------------------------------------

// ActiveExpireCycle samples deadline-carrying keys in every database and
// removes the expired ones. A database is resampled while more than a
// quarter of its sample was expired, within a global time budget.
func (s *Server) ActiveExpireCycle() {
	start := time.Now()
	for _, db := range s.dbs {
		for {
			n := db.expires.Len()
			if n == 0 {
				break
			}
			if n > activeExpireSamples {
				n = activeExpireSamples
			}
			expired := 0
			for i := 0; i < n; i++ {
				e := db.expires.RandomEntry()
				if e == nil {
					break
				}
				if nowMillis() > e.Val {
					db.Delete(e.Key)
					statExpiredKeys.Inc()
					s.AddDirty(1)
					expired++
				}
			}
			if time.Since(start) > activeExpireTimeLimit {
				return
			}
			if expired*4 <= n {
				break
			}
		}
	}
}
