package models

import (
	"context"
	"testing"
)

func TestRoleAllows(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleAdmin, RoleViewer, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleEditor, RoleViewer, true},
		{RoleEditor, RoleAdmin, false},
		{RoleViewer, RoleEditor, false},
		{Role("root"), RoleViewer, false},
	}
	for _, tt := range tests {
		if got := tt.role.Allows(tt.required); got != tt.want {
			t.Errorf("%q.Allows(%q) = %t, want %t", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := GetPrincipal(context.Background()); ok {
		t.Error("principal found in empty context")
	}
	p := &Principal{Name: "ops", Role: RoleViewer}
	got, ok := GetPrincipal(WithPrincipal(context.Background(), p))
	if !ok || got != p {
		t.Errorf("GetPrincipal() = %v, %t", got, ok)
	}
}
