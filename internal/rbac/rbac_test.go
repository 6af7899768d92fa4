package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "member read", role: RoleMember, action: ActionRead, allow: true},
		{name: "member write", role: RoleMember, action: ActionWrite, allow: true},
		{name: "member review", role: RoleMember, action: ActionReview, allow: false},
		{name: "member deprecate", role: RoleMember, action: ActionDeprecate, allow: false},
		{name: "reviewer review", role: RoleReviewer, action: ActionReview, allow: true},
		{name: "reviewer deprecate", role: RoleReviewer, action: ActionDeprecate, allow: false},
		{name: "moderator deprecate", role: RoleModerator, action: ActionDeprecate, allow: true},
		{name: "moderator admin", role: RoleModerator, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("admin"); got != RoleAdmin {
		t.Fatalf("Normalize(admin) = %q", got)
	}
	if got := Normalize("unknown"); got != RoleMember {
		t.Fatalf("Normalize(unknown) = %q, want member", got)
	}
	if got := Normalize(""); got != RoleMember {
		t.Fatalf("Normalize(\"\") = %q, want member", got)
	}
}
