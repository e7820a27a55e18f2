package domain

import (
	"fmt"
	"strings"
	"time"
)

// Organization represents a tenant in the system
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// NewOrganization creates a new Organization instance
func NewOrganization(id, name string, createdAt time.Time) *Organization {
	return &Organization{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
	}
}

// ValidateOrganization validates an Organization instance
func ValidateOrganization(o *Organization) error {
	if o == nil {
		return fmt.Errorf("organization cannot be nil")
	}

	if o.ID == "" {
		return fmt.Errorf("organization ID is required")
	}

	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("organization Name is required")
	}

	return nil
}

// Role is a user's role inside its organization.
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
	RoleAdmin     Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleProfessor, RoleAdmin:
		return true
	}
	return false
}

// User belongs to exactly one organization.
type User struct {
	ID        string
	OrgID     string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
}

// ValidateUser validates a User instance
func ValidateUser(u *User) error {
	if u == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if u.ID == "" {
		return fmt.Errorf("user ID is required")
	}
	if u.OrgID == "" {
		return fmt.Errorf("user OrgID is required")
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("user Email is invalid: %q", u.Email)
	}
	if !u.Role.IsValid() {
		return fmt.Errorf("user Role is invalid: %s", u.Role)
	}
	return nil
}

// LearningStyle holds a user's self-reported modality weights.
type LearningStyle struct {
	UserID      string
	Visual      float64
	Auditory    float64
	Reading     float64
	Kinesthetic float64
}
