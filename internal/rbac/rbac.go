package rbac

// Роли определяются списками telegram id из конфига, в БД не хранятся.
const (
	RoleUser    = "user"
	RoleSupport = "support"
	RoleAdmin   = "admin"
)

const (
	PermViewPayment   = "view_payment"
	PermRefundPayment = "refund_payment"
	PermAdjustBalance = "adjust_balance"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermViewPayment, PermRefundPayment, PermAdjustBalance,
	},
	RoleSupport: {
		PermViewPayment,
		// support не двигает деньги
	},
	RoleUser: {},
}

// Resolve picks the strongest role the caller is listed under.
func Resolve(isAdmin, isSupport bool) string {
	switch {
	case isAdmin:
		return RoleAdmin
	case isSupport:
		return RoleSupport
	default:
		return RoleUser
	}
}

func HasPermission(role, permission string) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// IsFinancialOperation reports permissions that move money (admin-only).
func IsFinancialOperation(permission string) bool {
	return permission == PermRefundPayment || permission == PermAdjustBalance
}
