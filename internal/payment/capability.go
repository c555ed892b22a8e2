package payment

import (
	"github.com/iliyamo/hotel-reservation/internal/model"
)

// Capability is the set of payment methods an actor may use.  It is
// computed from the caller's role and passed explicitly into every
// payment-bearing operation.
type Capability map[model.PaymentMethod]bool

// CapabilityFor returns the methods available to role.  Staff accept cash
// at the desk; everyone can pay by card.
func CapabilityFor(role string) Capability {
	if role == model.RoleStaff {
		return Capability{model.MethodCard: true, model.MethodCash: true}
	}
	return Capability{model.MethodCard: true}
}

// Allows reports whether method is in the set.
func (c Capability) Allows(method model.PaymentMethod) bool { return c[method] }
