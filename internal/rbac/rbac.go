package rbac

type Role string
type Action string

const (
	RoleMember    Role = "member"
	RoleReviewer  Role = "reviewer"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead      Action = "read"
	ActionWrite     Action = "write"
	ActionReview    Action = "review"
	ActionDeprecate Action = "deprecate"
	ActionAdmin     Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleModerator:
		return action == ActionRead || action == ActionWrite || action == ActionReview || action == ActionDeprecate
	case RoleReviewer:
		return action == ActionRead || action == ActionWrite || action == ActionReview
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleReviewer, RoleModerator, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}
