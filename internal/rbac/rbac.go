package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionChat   Action = "chat"
	ActionSync   Action = "sync"
	ActionManage Action = "manage"
)

// Can reports whether a project member with role may perform action.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionChat || action == ActionSync
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleOwner:
		return Role(role)
	default:
		return RoleViewer
	}
}
