package types

import (
	"encoding/base64"
	"strings"
)

type Role string

const (
	RoleFarmer   Role = "Farmer"
	RoleOfficial Role = "Official"
)

func (r Role) Valid() bool {
	return r == RoleFarmer || r == RoleOfficial
}

// Actor is the signed-in user on whose behalf an operation runs. It is
// handed to every workflow call instead of living in process state.
type Actor struct {
	Role  Role   `json:"role"`
	Name  string `json:"name"`
	ID    string `json:"id"`
	State string `json:"state,omitempty"`
}

func (a Actor) IsFarmer() bool   { return a.Role == RoleFarmer }
func (a Actor) IsOfficial() bool { return a.Role == RoleOfficial }

// ActorID derives the stable user id shown on sign-in: a role prefix plus the
// first eight characters of the URL-safe base64 encoding of the name.
func ActorID(role Role, name string) string {
	prefix := "O"
	if role == RoleFarmer {
		prefix = "F"
	}

	enc := base64.URLEncoding.EncodeToString([]byte(strings.TrimSpace(name)))
	if len(enc) > 8 {
		enc = enc[:8]
	}

	return prefix + "-" + enc
}
