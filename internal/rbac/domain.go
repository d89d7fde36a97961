package rbac

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleSupervisor   Role = "SUPERVISOR"
	RoleStoreManager Role = "STORE_MANAGER"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleSupervisor, RoleStoreManager}

// ErrUnknownRole is returned when a role string is outside the enum.
var ErrUnknownRole = fmt.Errorf("rbac: unknown role: %w", httpx.ErrValidation)

// ParseRole converts an external string into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%q: %w", raw, ErrUnknownRole)
	}
	return role, nil
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

func (r Role) String() string { return string(r) }

// Capability is an atomic permission checked at the HTTP boundary.
type Capability string

const (
	CapUsersManage       Capability = "users.manage"
	CapInventoryView     Capability = "inventory.view"
	CapInventoryInsights Capability = "inventory.insights"
	CapInventoryAdjust   Capability = "inventory.adjust"
	CapMRSRequest        Capability = "mrs.request"
	CapMRSIssue          Capability = "mrs.issue"
	CapStockReturn       Capability = "stock.return"
	CapPIRaise           Capability = "pi.raise"
	CapPIView            Capability = "pi.view"
	CapPIDecide          Capability = "pi.decide"
	CapPIInward          Capability = "pi.inward"
	CapSuppliersView     Capability = "suppliers.view"
	CapAnalyticsOverview Capability = "analytics.overview"
	CapAnalyticsStock    Capability = "analytics.stock"
	CapAnalyticsUsage    Capability = "analytics.usage"
	CapNotificationsRead Capability = "notifications.read"
	CapAuditView         Capability = "audit.view"
)

var common = []Capability{CapInventoryView, CapAnalyticsOverview, CapNotificationsRead}

// capabilities is the single declaration of what each role may do.
var capabilities = map[Role][]Capability{
	RoleAdmin: append([]Capability{
		CapUsersManage,
		CapInventoryInsights,
		CapInventoryAdjust,
		CapMRSIssue,
		CapPIView,
		CapPIDecide,
		CapSuppliersView,
		CapAnalyticsStock,
		CapAnalyticsUsage,
		CapAuditView,
	}, common...),
	RoleSupervisor: append([]Capability{
		CapMRSRequest,
		CapStockReturn,
		CapAnalyticsUsage,
	}, common...),
	RoleStoreManager: append([]Capability{
		CapInventoryInsights,
		CapInventoryAdjust,
		CapMRSIssue,
		CapStockReturn,
		CapPIRaise,
		CapPIView,
		CapPIInward,
		CapSuppliersView,
		CapAnalyticsStock,
	}, common...),
}

// Capabilities returns a copy of the capability set granted to r.
func Capabilities(r Role) []Capability {
	return slices.Clone(capabilities[r])
}

// Can reports whether r holds capability c.
func (r Role) Can(c Capability) bool {
	return slices.Contains(capabilities[r], c)
}

// Principal describes the authenticated actor.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Role     Role
}

// Can reports whether the principal's role grants c.
func (p Principal) Can(c Capability) bool {
	return p.Role.Can(c)
}
