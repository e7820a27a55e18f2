package tenant

import (
	"context"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"go.uber.org/zap"
)

// Roster answers whether a user teaches a course.
type Roster interface {
	Teaches(ctx context.Context, orgID, userID, courseID string) (bool, error)
}

// Gate is the single authorization decision point.
type Gate struct {
	roster Roster
	logger *zap.Logger
}

// NewGate creates a Gate. A nil roster denies every professor check that needs it.
func NewGate(roster Roster, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{roster: roster, logger: logger}
}

// Authorize returns domain.ErrAccessDenied unless the principal may perform op on scope.
func (g *Gate) Authorize(ctx context.Context, p Principal, op Operation, scope Scope) error {
	d := g.Decide(ctx, p, op, scope)
	if d.Allowed {
		return nil
	}

	telemetry.AuthorizationDenials.WithLabelValues(string(op)).Inc()
	g.logger.Warn("authorization denied",
		zap.String("operation", string(op)),
		zap.String("reason", d.Reason),
		zap.String("principal_org_id", p.OrgID),
		zap.String("principal_user_id", p.UserID),
		zap.String("scope_org_id", scope.OrgID),
		zap.String("scope_course_id", scope.CourseID),
	)
	return domain.ErrAccessDenied
}

// Decide evaluates the rules without side effects.
func (g *Gate) Decide(ctx context.Context, p Principal, op Operation, scope Scope) Decision {
	if !p.Valid() {
		return deny("incomplete principal")
	}
	if !op.known() {
		return deny("unknown operation")
	}
	if scope.OrgID == "" {
		return deny("scope has no organization")
	}
	if scope.OrgID != p.OrgID {
		return deny("cross-organization access")
	}

	if op.mutatesContent() {
		switch p.Role {
		case domain.RoleAdmin:
			return allow()
		case domain.RoleProfessor:
			if scope.CourseID == "" {
				return allow()
			}
			return g.teaches(ctx, p, scope.CourseID)
		default:
			return deny("role cannot modify content")
		}
	}

	if op.userScoped() {
		if scope.UserID == "" {
			return deny("user-scoped operation without user")
		}
		if scope.UserID == p.UserID || p.Role == domain.RoleAdmin {
			return allow()
		}
		if p.Role == domain.RoleProfessor {
			if scope.CourseID == "" {
				return deny("professor access to another user requires a course")
			}
			return g.teaches(ctx, p, scope.CourseID)
		}
		return deny("access to another user's data")
	}

	return allow()
}

func (g *Gate) teaches(ctx context.Context, p Principal, courseID string) Decision {
	if g.roster == nil {
		return deny("no course roster configured")
	}
	ok, err := g.roster.Teaches(ctx, p.OrgID, p.UserID, courseID)
	if err != nil {
		g.logger.Error("roster lookup failed", zap.Error(err), zap.String("course_id", courseID))
		return deny("roster lookup failed")
	}
	if !ok {
		return deny("professor does not teach course")
	}
	return allow()
}
