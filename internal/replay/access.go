package replay

import "replay-warden/internal/config"

// Actor is the identity behind an inbound event.
type Actor struct {
	ID            string
	RoleIDs       []string
	Administrator bool
}

// Access holds the reviewer and admin allow-lists.
type Access struct {
	reviewers identitySet
	admins    identitySet
}

type identitySet struct {
	users map[string]struct{}
	roles map[string]struct{}
}

func NewAccess(reviewers, admins config.AccessConfig) *Access {
	return &Access{
		reviewers: newIdentitySet(reviewers),
		admins:    newIdentitySet(admins),
	}
}

func (a *Access) IsReviewer(actor Actor) bool {
	return a.reviewers.contains(actor)
}

// IsAdmin is true for listed users or roles and for anyone holding the guild Administrator permission.
func (a *Access) IsAdmin(actor Actor) bool {
	return actor.Administrator || a.admins.contains(actor)
}

func newIdentitySet(cfg config.AccessConfig) identitySet {
	set := identitySet{
		users: make(map[string]struct{}, len(cfg.UserIDs)),
		roles: make(map[string]struct{}, len(cfg.RoleIDs)),
	}
	for _, id := range cfg.UserIDs {
		set.users[id] = struct{}{}
	}
	for _, id := range cfg.RoleIDs {
		set.roles[id] = struct{}{}
	}
	return set
}

func (s identitySet) contains(actor Actor) bool {
	if actor.ID == "" {
		return false
	}
	if _, ok := s.users[actor.ID]; ok {
		return true
	}
	for _, roleID := range actor.RoleIDs {
		if _, ok := s.roles[roleID]; ok {
			return true
		}
	}
	return false
}
