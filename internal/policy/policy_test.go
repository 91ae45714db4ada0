package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stoqplus/backend/internal/domain"
)

func TestSellerCannotManageTeamOrStore(t *testing.T) {
	seller := Subject{Role: domain.RoleSeller, CanSell: true, HasStore: true}

	for _, action := range []Action{ActionCreateMember, ActionUpdateMember, ActionRemoveMember, ActionDeleteStore, ActionUpdateStore, ActionBilling} {
		d := Evaluate(seller, action)
		assert.False(t, d.Allowed, "seller should be denied %s", action)
		assert.NotEmpty(t, d.Reason)
	}
}

func TestCapabilityFlags(t *testing.T) {
	seller := Subject{Role: domain.RoleSeller, HasStore: true}
	assert.False(t, Evaluate(seller, ActionSell).Allowed)
	assert.False(t, Evaluate(seller, ActionManageProducts).Allowed)

	seller.CanSell = true
	seller.CanManageProducts = true
	assert.True(t, Evaluate(seller, ActionSell).Allowed)
	assert.True(t, Evaluate(seller, ActionOperateCash).Allowed)
	assert.True(t, Evaluate(seller, ActionStockEntry).Allowed)
	assert.False(t, Evaluate(seller, ActionViewReports).Allowed)
}

func TestManagerVersusOwner(t *testing.T) {
	manager := Subject{Role: domain.RoleManager, HasStore: true}
	assert.True(t, Evaluate(manager, ActionCreateMember).Allowed)
	assert.True(t, Evaluate(manager, ActionViewReports).Allowed)
	assert.False(t, Evaluate(manager, ActionRemoveMember).Allowed)

	owner := Subject{Role: domain.RoleOwner, HasStore: true}
	assert.True(t, Evaluate(owner, ActionRemoveMember).Allowed)
	assert.True(t, Evaluate(owner, ActionDeleteStore).Allowed)
}

func TestStorelessAccounts(t *testing.T) {
	user := Subject{Role: domain.RoleUser}
	assert.True(t, Evaluate(user, ActionCreateStore).Allowed)
	d := Evaluate(user, ActionViewProducts)
	assert.False(t, d.Allowed)
	assert.Equal(t, "no store membership", d.Reason)

	member := Subject{Role: domain.RoleSeller, HasStore: true}
	assert.False(t, Evaluate(member, ActionCreateStore).Allowed)
}

func TestSuperAdmin(t *testing.T) {
	admin := Subject{IsSuperAdmin: true}
	assert.True(t, Evaluate(admin, ActionAdmin).Allowed)
	assert.False(t, Evaluate(Subject{Role: domain.RoleOwner, HasStore: true}, ActionAdmin).Allowed)

	admin.HasStore = true
	admin.Role = domain.RoleSeller
	assert.True(t, Evaluate(admin, ActionRemoveMember).Allowed)
}
