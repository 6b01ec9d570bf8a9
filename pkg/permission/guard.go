// Package permission decides whether a caller may invoke a tool.
package permission

// Requirements is implemented by anything declaring write/admin gating,
// typically a tool's metadata.
type Requirements interface {
	RequiresWrite() bool
	RequiresAdmin() bool
}

// Outcome is the result of a permission check
type Outcome int

const (
	Allowed Outcome = iota
	WritePermissionDenied
	AdminPermissionDenied
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case WritePermissionDenied:
		return "write_permission_denied"
	case AdminPermissionDenied:
		return "admin_permission_denied"
	default:
		return "unknown"
	}
}

// Check evaluates caller against req. Admin requirements are checked first.
func Check(req Requirements, caller AuthenticatedUser) Outcome {
	if req.RequiresAdmin() && !caller.Role.IsAdmin() {
		return AdminPermissionDenied
	}
	if req.RequiresWrite() && !caller.Role.CanWrite() {
		return WritePermissionDenied
	}
	return Allowed
}

// Permits reports whether Check returns Allowed
func Permits(req Requirements, caller AuthenticatedUser) bool {
	return Check(req, caller) == Allowed
}
