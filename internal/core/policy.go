package core

import "github.com/google/uuid"

// Permission is a receiving action that only some roles may take.
type Permission string

const (
	PermOverridePrice Permission = "override_price"
	PermReviewPricing Permission = "review_pricing"
	PermApplyCredit   Permission = "apply_credit"
	PermAnyPlant      Permission = "any_plant"
)

// Policy is the single authorization table of the receiving engine: permission → roles.
// Every role-gated decision reads from it, so there is exactly one list per permission.
type Policy struct {
	grants map[Permission]map[Role]bool
}

// DefaultPolicy grants every permission to EXECUTIVE and ADMIN_OPERATIONS.
func DefaultPolicy() Policy {
	elevated := []Role{RoleExecutive, RoleAdminOperations}
	return NewPolicy(map[Permission][]Role{
		PermOverridePrice: elevated,
		PermReviewPricing: elevated,
		PermApplyCredit:   elevated,
		PermAnyPlant:      elevated,
	})
}

// NewPolicy builds a Policy from a permission → roles table.
func NewPolicy(table map[Permission][]Role) Policy {
	p := Policy{grants: make(map[Permission]map[Role]bool, len(table))}
	for perm, roles := range table {
		set := make(map[Role]bool, len(roles))
		for _, r := range roles {
			set[r] = true
		}
		p.grants[perm] = set
	}
	return p
}

// Allows reports whether role holds perm.
func (p Policy) Allows(role Role, perm Permission) bool {
	return p.grants[perm][role]
}

// Roles returns the roles holding perm, in no particular order.
func (p Policy) Roles(perm Permission) []Role {
	roles := make([]Role, 0, len(p.grants[perm]))
	for r := range p.grants[perm] {
		roles = append(roles, r)
	}
	return roles
}

// CanActAtPlant reports whether a may record or correct deliveries at plantID.
func (p Policy) CanActAtPlant(a Actor, plantID uuid.UUID) bool {
	if p.Allows(a.Role, PermAnyPlant) {
		return true
	}
	return a.PlantID != nil && *a.PlantID == plantID
}
