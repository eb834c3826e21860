package auth

import (
	"fmt"
	"sort"
)

// Permissions checked by the engine's callers.
const (
	PermProjectCreate   = "project.create"
	PermProjectRead     = "project.read"
	PermProjectDelete   = "project.delete"
	PermStageRead       = "stage.read"
	PermStageTransition = "stage.transition"
	PermStageHistory    = "stage.history"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Policy maps role ids to the permissions they grant.
type Policy struct {
	Roles map[string][]string
}

func (p Policy) Permissions(roles []string) []string {
	set := map[string]bool{}
	for _, role := range roles {
		for _, perm := range p.Roles[role] {
			set[perm] = true
		}
	}
	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

func (p Policy) Allows(roles []string, perm string) bool {
	for _, role := range roles {
		for _, granted := range p.Roles[role] {
			if granted == perm || granted == "*" {
				return true
			}
		}
	}
	return false
}

// Require returns ForbiddenError unless one of roles grants perm.
func (p Policy) Require(roles []string, perm string) error {
	if p.Allows(roles, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}
