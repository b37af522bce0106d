package actor

import (
	"errors"
	"fmt"
)

var ErrForbidden = errors.New("forbidden")

type Role string

const (
	RoleMaster    Role = "master"
	RoleReferee   Role = "referee"
	RoleFencer    Role = "fencer"
	RoleAnonymous Role = "anonymous"
)

func ParseRole(s string) Role {
	switch Role(s) {
	case RoleMaster, RoleReferee, RoleFencer:
		return Role(s)
	default:
		return RoleAnonymous
	}
}

// Actor identifies who issued a command.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Role)
	}
	return fmt.Sprintf("%s:%s", a.Role, a.ID)
}

// Officiate covers running bouts: starting, scoring and timing.
func (a Actor) Officiate() error {
	if a.Role == RoleMaster || a.Role == RoleReferee {
		return nil
	}
	return fmt.Errorf("%w: %s cannot officiate", ErrForbidden, a)
}

// Administer covers piste and bracket management.
func (a Actor) Administer() error {
	if a.Role == RoleMaster {
		return nil
	}
	return fmt.Errorf("%w: %s is not the tournament master", ErrForbidden, a)
}

var System = Actor{ID: "system", Role: RoleMaster}
