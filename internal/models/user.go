package models

import (
	"time"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin            Role = "Admin"
	RoleFleetManager     Role = "Fleet Manager"
	RoleDispatcher       Role = "Dispatcher"
	RoleSafetyOfficer    Role = "Safety Officer"
	RoleFinancialAnalyst Role = "Financial Analyst"
)

// Actions checked by HasPermission.
const (
	ActionViewFleet         = "view_fleet"
	ActionManageVehicles    = "manage_vehicles"
	ActionManageMaintenance = "manage_maintenance"
	ActionManageTrips       = "manage_trips"
	ActionManageDrivers     = "manage_drivers"
	ActionBanDrivers        = "ban_drivers"
	ActionManageExpenses    = "manage_expenses"
	ActionResolveAlerts     = "resolve_alerts"
	ActionRunChecks         = "run_checks"
)

// User represents a user in the system
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	Name         string             `bson:"name" json:"name"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleFleetManager, RoleDispatcher, RoleSafetyOfficer, RoleFinancialAnalyst:
		return true
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	switch action {
	case ActionViewFleet, ActionResolveAlerts:
		return IsValidRole(u.Role)
	}
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleFleetManager:
		return action == ActionManageVehicles || action == ActionManageMaintenance || action == ActionRunChecks
	case RoleDispatcher:
		return action == ActionManageTrips
	case RoleSafetyOfficer:
		return action == ActionManageDrivers || action == ActionRunChecks
	case RoleFinancialAnalyst:
		return action == ActionManageExpenses
	default:
		return false
	}
}
