package models

import "time"

// ResourceKind discriminates the three shared-resource catalogs.
type ResourceKind string

const (
	ResourceSkill     ResourceKind = "skill"
	ResourceRecipe    ResourceKind = "recipe"
	ResourceExtension ResourceKind = "extension"
)

// Visibility controls who can see a shared resource.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityTeam    Visibility = "team"
	VisibilityPublic  Visibility = "public"
)

// ProtectionLevel controls who may use a shared resource once visible.
type ProtectionLevel string

const (
	ProtectionPublic          ProtectionLevel = "public"
	ProtectionTeamInstallable ProtectionLevel = "team_installable"
	ProtectionRestricted      ProtectionLevel = "restricted"
)

// SharedResource is a skill, recipe, or extension published for reuse
// across sessions within (or beyond) a team.
type SharedResource struct {
	ID               string          `json:"id"`
	TeamID           string          `json:"team_id"`
	Kind             ResourceKind    `json:"kind"`
	Name             string          `json:"name"`
	Visibility       Visibility      `json:"visibility"`
	ProtectionLevel  ProtectionLevel `json:"protection_level"`
	Version          int             `json:"version"`
	SecurityReviewed bool            `json:"security_reviewed"`
	UseCount         int64           `json:"use_count"`
	Content          string          `json:"content,omitempty"` // recipe YAML / skill body
	IsDeleted        bool            `json:"is_deleted,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AutoLoadable reports whether an extension may be auto-loaded under the
// "reviewed_only" skill/extension policy.
func (r *SharedResource) AutoLoadable(reviewedOnly bool) bool {
	if r.Kind != ResourceExtension {
		return true
	}
	if !reviewedOnly {
		return true
	}
	return r.SecurityReviewed
}
