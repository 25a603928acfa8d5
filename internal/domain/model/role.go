package model

import "strings"

// Role is the model bucket a participant is scored under.
type Role string

// Known roles. RoleUnknown never has a model.
const (
	RoleTop     Role = "Top"
	RoleJungle  Role = "Jungle"
	RoleMid     Role = "Mid"
	RoleADC     Role = "ADC"
	RoleSupport Role = "Support"
	RoleUnknown Role = "UNKNOWN"
)

// Roles lists the scored roles in a stable order.
var Roles = []Role{RoleTop, RoleJungle, RoleMid, RoleADC, RoleSupport}

// RoleFromPosition maps the provider's assigned position to a role.
func RoleFromPosition(position string) Role {
	switch position {
	case "TOP":
		return RoleTop
	case "JUNGLE":
		return RoleJungle
	case "MIDDLE":
		return RoleMid
	case "BOTTOM":
		return RoleADC
	case "UTILITY":
		return RoleSupport
	default:
		return RoleUnknown
	}
}

// ArtifactName is the model file name for the role, e.g. "adc_model.json".
func (r Role) ArtifactName() string {
	return strings.ToLower(string(r)) + "_model.json"
}
