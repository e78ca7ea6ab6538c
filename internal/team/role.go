package team

import "fmt"

// Role is a membership role. Roles are ordered: member < admin < owner < creator.
type Role int

const (
	RoleMember Role = iota + 1
	RoleAdmin
	RoleOwner
	RoleCreator
)

var roleNames = map[Role]string{
	RoleMember:  "member",
	RoleAdmin:   "admin",
	RoleOwner:   "owner",
	RoleCreator: "creator",
}

// manageTable maps actor role to the target roles it may act upon
// (remove, cancel on their behalf, and so on).
var manageTable = map[Role]map[Role]bool{
	RoleCreator: {RoleMember: true, RoleAdmin: true, RoleOwner: true, RoleCreator: true},
	RoleOwner:   {RoleMember: true, RoleAdmin: true, RoleOwner: true, RoleCreator: true},
	RoleAdmin:   {RoleMember: true},
	RoleMember:  {},
}

// grantTable maps actor role to the roles it may assign on direct addition.
// Creator is never granted directly; it only changes hands through a transfer.
var grantTable = map[Role]map[Role]bool{
	RoleCreator: {RoleMember: true, RoleAdmin: true, RoleOwner: true},
	RoleOwner:   {RoleMember: true, RoleAdmin: true, RoleOwner: true},
	RoleAdmin:   {RoleMember: true},
	RoleMember:  {},
}

// ParseRole converts the stored string form into a Role.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// String returns the stored string form of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// IsManager reports whether the role may manage invitations, applications and members.
func (r Role) IsManager() bool {
	return r >= RoleAdmin && r.Valid()
}

// IsOwnerLevel reports whether the role is owner or creator.
func (r Role) IsOwnerLevel() bool {
	return r == RoleOwner || r == RoleCreator
}

// CanManage reports whether an actor holding r may act on a member holding target.
func (r Role) CanManage(target Role) bool {
	return manageTable[r][target]
}

// CanGrant reports whether an actor holding r may add someone directly with role target.
func (r Role) CanGrant(target Role) bool {
	return grantTable[r][target]
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
