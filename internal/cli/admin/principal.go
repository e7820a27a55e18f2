package admin

import (
	"fmt"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"github.com/spf13/cobra"
)

// addPrincipalFlags registers the caller identity flags shared by content
// commands. The CLI acts with the given identity and goes through the same
// gate as any other caller.
func addPrincipalFlags(cmd *cobra.Command) {
	cmd.Flags().String("org", "", "Organization ID (required)")
	cmd.Flags().String("user", "", "Acting user ID (default: service principal)")
	cmd.Flags().String("role", string(domain.RoleAdmin), "Acting role: student, professor or admin")
	_ = cmd.MarkFlagRequired("org")
}

func principalFromFlags(cmd *cobra.Command) (tenant.Principal, error) {
	orgID, _ := cmd.Flags().GetString("org")
	userID, _ := cmd.Flags().GetString("user")
	role, _ := cmd.Flags().GetString("role")

	if userID == "" {
		if domain.Role(role) != domain.RoleAdmin {
			return tenant.Principal{}, fmt.Errorf("--user is required for role %s", role)
		}
		return tenant.ServicePrincipal(orgID), nil
	}

	p := tenant.Principal{OrgID: orgID, UserID: userID, Role: domain.Role(role)}
	if !p.Valid() {
		return tenant.Principal{}, domain.ErrInvalidRole
	}
	return p, nil
}
