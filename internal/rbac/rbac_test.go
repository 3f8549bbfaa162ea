package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "viewer chat", role: RoleViewer, action: ActionChat, allow: false},
		{name: "editor chat", role: RoleEditor, action: ActionChat, allow: true},
		{name: "editor sync", role: RoleEditor, action: ActionSync, allow: true},
		{name: "editor manage", role: RoleEditor, action: ActionManage, allow: false},
		{name: "owner manage", role: RoleOwner, action: ActionManage, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
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
	if got := Normalize("owner"); got != RoleOwner {
		t.Fatalf("Normalize(owner) = %q", got)
	}
	if got := Normalize("admin"); got != RoleViewer {
		t.Fatalf("Normalize(admin) = %q, want viewer", got)
	}
}
