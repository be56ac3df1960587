package domain

// Role is what an operator is allowed to do in the ledger.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
)

var roles = map[Role]struct{}{
	RoleViewer:   {},
	RoleOperator: {},
	RoleAdmin:    {},
	RoleDirector: {},
}

// Valid reports whether r belongs to the closed set of roles.
func (r Role) Valid() bool {
	_, ok := roles[r]
	return ok
}

// Actor is the identity performing an operation. Authentication happens upstream.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is used for actions the service performs on its own behalf.
var System = Actor{ID: "system", Role: RoleOperator}

// CanOperate reports whether the actor may perform ordinary ledger operations.
// Unknown roles get nothing.
func (a Actor) CanOperate() bool {
	return a.ID != "" && a.Role.Valid() && a.Role != RoleViewer
}
