package memory

// Store bundles every in-memory repository.
type Store struct {
	Users       *UserStore
	Sessions    *SessionStore
	Blacklist   *Blacklist
	CSRF        *CSRFStore
	Permissions *PermissionStore
	SecurityLog *SecurityLogStore
	Owners      *ResourceOwners
}

// New returns a Store with builtin roles seeded.
func New() *Store {
	sessions := NewSessionStore()
	return &Store{
		Users:       NewUserStore(),
		Sessions:    sessions,
		Blacklist:   NewBlacklist(),
		CSRF:        NewCSRFStore(),
		Permissions: NewPermissionStore(),
		SecurityLog: NewSecurityLogStore(),
		Owners:      NewResourceOwners(sessions),
	}
}
