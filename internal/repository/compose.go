package repository

// WithPresence returns a Store that serves presence from the given
// backend and everything else from base. Used to keep presence in
// Redis, where TTL expiry is native, while documents live in the
// configured store.
func WithPresence(base Store, presence PresenceStore) Store {
	return &presenceOverride{Store: base, presence: presence}
}

type presenceOverride struct {
	Store
	presence PresenceStore
}

func (s *presenceOverride) Presence() PresenceStore { return s.presence }
