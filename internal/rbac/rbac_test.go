package rbac

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		admin, support bool
		want           string
	}{
		{true, true, RoleAdmin},
		{true, false, RoleAdmin},
		{false, true, RoleSupport},
		{false, false, RoleUser},
	}
	for _, tt := range tests {
		if got := Resolve(tt.admin, tt.support); got != tt.want {
			t.Errorf("Resolve(%v, %v) = %s, want %s", tt.admin, tt.support, got, tt.want)
		}
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role, perm string
		want       bool
	}{
		{RoleAdmin, PermRefundPayment, true},
		{RoleAdmin, PermAdjustBalance, true},
		{RoleSupport, PermViewPayment, true},
		{RoleSupport, PermRefundPayment, false},
		{RoleSupport, PermAdjustBalance, false},
		{RoleUser, PermViewPayment, false},
		{"unknown", PermViewPayment, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestFinancialOperationsAreAdminOnly(t *testing.T) {
	for role := range RolePermissions {
		if role == RoleAdmin {
			continue
		}
		for _, p := range RolePermissions[role] {
			if IsFinancialOperation(p) {
				t.Errorf("role %s has financial permission %s", role, p)
			}
		}
	}
}
