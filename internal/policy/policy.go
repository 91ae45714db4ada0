// Package policy decides whether an actor may perform an action in its store.
// Handlers and services ask Evaluate instead of comparing roles themselves.
package policy

import "stoqplus/backend/internal/domain"

type Action string

const (
	ActionCreateStore     Action = "store.create"
	ActionUpdateStore     Action = "store.update"
	ActionDeleteStore     Action = "store.delete"
	ActionViewTeam        Action = "team.view"
	ActionCreateMember    Action = "team.create"
	ActionUpdateMember    Action = "team.update"
	ActionRemoveMember    Action = "team.remove"
	ActionViewProducts    Action = "products.view"
	ActionManageProducts  Action = "products.manage"
	ActionStockEntry      Action = "stock.entry"
	ActionSell            Action = "sales.create"
	ActionManageDebts     Action = "sales.debts"
	ActionViewOwnMetrics  Action = "sales.own_metrics"
	ActionManageCustomers Action = "customers.manage"
	ActionOperateCash     Action = "cash.operate"
	ActionViewReports     Action = "reports.view"
	ActionManageExpenses  Action = "expenses.manage"
	ActionBilling         Action = "billing.manage"
	ActionAdmin           Action = "admin"
)

// Subject is what the policy knows about the caller.
type Subject struct {
	Role              string
	CanSell           bool
	CanManageProducts bool
	IsSuperAdmin      bool
	HasStore          bool
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

func Evaluate(s Subject, action Action) Decision {
	if action == ActionAdmin {
		if s.IsSuperAdmin {
			return allow()
		}
		return deny("super admin only")
	}
	if action == ActionCreateStore {
		if s.HasStore {
			return deny("user already has a store")
		}
		return allow()
	}
	if s.IsSuperAdmin && s.HasStore {
		return allow()
	}
	if !s.HasStore {
		return deny("no store membership")
	}

	switch action {
	case ActionViewProducts, ActionViewOwnMetrics, ActionManageCustomers, ActionViewTeam:
		return allow()
	case ActionSell, ActionOperateCash, ActionManageDebts:
		if isManagerial(s.Role) || s.CanSell {
			return allow()
		}
		return deny("sales permission required")
	case ActionManageProducts, ActionStockEntry:
		if isManagerial(s.Role) || s.CanManageProducts {
			return allow()
		}
		return deny("product management permission required")
	case ActionViewReports, ActionManageExpenses, ActionCreateMember, ActionUpdateMember:
		if isManagerial(s.Role) {
			return allow()
		}
		return deny("manager or owner role required")
	case ActionRemoveMember, ActionUpdateStore, ActionDeleteStore, ActionBilling:
		if s.Role == domain.RoleOwner {
			return allow()
		}
		return deny("owner role required")
	}
	return deny("unknown action")
}

func isManagerial(role string) bool {
	return role == domain.RoleOwner || role == domain.RoleManager
}
