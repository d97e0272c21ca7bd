package core

import "github.com/google/uuid"

// Role is the acting user's role as assigned by the surrounding ERP.
type Role string

const (
	RoleExecutive       Role = "EXECUTIVE"
	RoleAdminOperations Role = "ADMIN_OPERATIONS"
	RolePlantManager    Role = "PLANT_MANAGER"
	RoleDosificador     Role = "DOSIFICADOR"
	RoleAdministrative  Role = "ADMINISTRATIVE"
)

// Actor is the authenticated user performing a receiving operation.
// PlantID is the user's plant assignment; nil means no assignment.
type Actor struct {
	UserID  uuid.UUID
	Role    Role
	PlantID *uuid.UUID
}
