// Package tenant decides whether a principal may act on a scope.
//
// Every core operation receives an explicit Principal and the Scope it
// targets. The Gate fails closed: an incomplete principal, an empty scope,
// or a roster lookup error all deny, and every denial looks the same to
// the caller.
package tenant

import (
	"github.com/cloo-solutions/tutorcore/internal/domain"
)

// Operation names an action checked by the Gate.
type Operation string

const (
	OpChunkMaterial    Operation = "chunk_material"
	OpStoreChunks      Operation = "store_chunks"
	OpEmbedChunks      Operation = "embed_chunks"
	OpSearch           Operation = "search"
	OpRetrieve         Operation = "retrieve"
	OpReadMaterial     Operation = "read_material"
	OpScheduleReview   Operation = "schedule_review"
	OpReadAttempts     Operation = "read_attempts"
	OpWriteAttempt     Operation = "write_attempt"
	OpReadInteractions Operation = "read_interactions"
	OpWriteInteraction Operation = "write_interaction"
)

// mutatesContent reports operations that change shared course content.
func (o Operation) mutatesContent() bool {
	switch o {
	case OpChunkMaterial, OpStoreChunks, OpEmbedChunks:
		return true
	}
	return false
}

// userScoped reports operations on one user's personal data.
func (o Operation) userScoped() bool {
	switch o {
	case OpScheduleReview, OpReadAttempts, OpWriteAttempt, OpReadInteractions, OpWriteInteraction:
		return true
	}
	return false
}

func (o Operation) known() bool {
	switch o {
	case OpSearch, OpRetrieve, OpReadMaterial:
		return true
	}
	return o.mutatesContent() || o.userScoped()
}

// Principal is the authenticated caller.
type Principal struct {
	OrgID  string
	UserID string
	Role   domain.Role
}

// Valid reports whether all fields are present and the role is known.
func (p Principal) Valid() bool {
	return p.OrgID != "" && p.UserID != "" && p.Role.IsValid()
}

// ServicePrincipal is the identity background workers act under.
// It goes through the same Gate as any user.
func ServicePrincipal(orgID string) Principal {
	return Principal{OrgID: orgID, UserID: "system:worker", Role: domain.RoleAdmin}
}

// Scope is the target of an operation. OrgID is mandatory; CourseID and
// UserID narrow it further.
type Scope struct {
	OrgID    string
	CourseID string
	UserID   string
}

// OrgScope targets a whole organization.
func OrgScope(orgID string) Scope {
	return Scope{OrgID: orgID}
}

// CourseScope targets one course.
func CourseScope(orgID, courseID string) Scope {
	return Scope{OrgID: orgID, CourseID: courseID}
}

// Decision is the outcome of a check. Reason is for logs only.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }
