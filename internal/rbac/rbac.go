// Package rbac decides what a caller may do inside a project.
package rbac

import "teamworks/api/internal/ids"

type Role string
type Action string

const (
	RoleNone   Role = "none"
	RoleMember Role = "member"
	RoleOwner  Role = "owner"
)

const (
	// ActionRead covers viewing the project, its backlog, comments and attachments.
	ActionRead Action = "read"
	// ActionWrite covers editing backlog items, comments and attachments.
	ActionWrite Action = "write"
	// ActionManage covers renaming, inviting, removing members, transferring and deleting.
	ActionManage Action = "manage"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// RoleIn returns the caller's role in a project given its owner and members.
func RoleIn(userID, ownerID ids.ID, memberIDs []ids.ID) Role {
	switch {
	case userID.IsZero():
		return RoleNone
	case userID == ownerID:
		return RoleOwner
	case ids.Contains(memberIDs, userID):
		return RoleMember
	default:
		return RoleNone
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleOwner:
		return Role(role)
	default:
		return RoleNone
	}
}
