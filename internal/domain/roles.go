package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleSalesAgent Role = "sales_agent"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
)

// ParseRole normalizes a stored or requested role name. "sales_person" is the
// legacy spelling of sales_agent.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "customer":
		return RoleCustomer, nil
	case "sales_agent", "sales_person":
		return RoleSalesAgent, nil
	case "manager":
		return RoleManager, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

func (r Role) IsStaff() bool {
	return r == RoleSalesAgent || r == RoleManager || r == RoleAdmin
}

type Permission string

const (
	PermViewCatalog             Permission = "view_catalog"
	PermRecordTransaction       Permission = "record_transaction"
	PermViewTransactions        Permission = "view_transactions"
	PermUpdateTransactionStatus Permission = "update_transaction_status"
	PermRequestTransfer         Permission = "request_transfer"
	PermApproveTransfer         Permission = "approve_transfer"
	PermManagePurchasing        Permission = "manage_purchasing"
	PermProcessReturns          Permission = "process_returns"
	PermApproveReturns          Permission = "approve_returns"
	PermManageInventory         Permission = "manage_inventory"
	PermManageLoyalty           Permission = "manage_loyalty"
	PermViewOwnLoyalty          Permission = "view_loyalty_own"
	PermManageUsers             Permission = "manage_users"
	PermViewDashboard           Permission = "view_dashboard"
	PermViewAudit               Permission = "view_audit"
	PermShop                    Permission = "shop"
	PermManageOrders            Permission = "manage_orders"
	PermManageInvoices          Permission = "manage_invoices"
	PermMessage                 Permission = "message"
)

var rolePermissions = map[Role]map[Permission]bool{
	RoleCustomer: permSet(
		PermViewCatalog,
		PermViewOwnLoyalty,
		PermShop,
		PermMessage,
	),
	RoleSalesAgent: permSet(
		PermViewCatalog,
		PermRecordTransaction,
		PermViewTransactions,
		PermRequestTransfer,
		PermProcessReturns,
		PermViewOwnLoyalty,
		PermManageOrders,
		PermManageInvoices,
		PermMessage,
	),
	RoleManager: permSet(
		PermViewCatalog,
		PermRecordTransaction,
		PermViewTransactions,
		PermUpdateTransactionStatus,
		PermRequestTransfer,
		PermApproveTransfer,
		PermManagePurchasing,
		PermProcessReturns,
		PermApproveReturns,
		PermManageInventory,
		PermManageLoyalty,
		PermViewOwnLoyalty,
		PermViewDashboard,
		PermManageOrders,
		PermManageInvoices,
		PermMessage,
	),
	RoleAdmin: permSet(
		PermViewCatalog,
		PermRecordTransaction,
		PermViewTransactions,
		PermUpdateTransactionStatus,
		PermRequestTransfer,
		PermApproveTransfer,
		PermManagePurchasing,
		PermProcessReturns,
		PermApproveReturns,
		PermManageInventory,
		PermManageLoyalty,
		PermViewOwnLoyalty,
		PermManageUsers,
		PermViewDashboard,
		PermViewAudit,
		PermManageOrders,
		PermManageInvoices,
		PermMessage,
	),
}

func permSet(perms ...Permission) map[Permission]bool {
	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set
}

// Can reports whether role holds perm.
func (r Role) Can(perm Permission) bool {
	return rolePermissions[r][perm]
}

// Authorize is the single authorization check used by the service and HTTP layers.
func Authorize(role Role, perm Permission) error {
	if role.Can(perm) {
		return nil
	}
	return fmt.Errorf("%w: role %q lacks %s", ErrForbidden, role, perm)
}
