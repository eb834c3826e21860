package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyRequire(t *testing.T) {
	p := Policy{Roles: map[string][]string{
		"project_manager": {PermStageTransition, PermStageRead},
		"client":          {PermStageRead},
		"admin":           {"*"},
	}}

	require.NoError(t, p.Require([]string{"client", "project_manager"}, PermStageTransition))
	require.NoError(t, p.Require([]string{"admin"}, PermProjectDelete))

	err := p.Require([]string{"client"}, PermStageTransition)
	var forbidden ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, PermStageTransition, forbidden.Permission)

	assert.Error(t, p.Require(nil, PermStageRead))
	assert.Equal(t, []string{PermStageRead, PermStageTransition}, p.Permissions([]string{"project_manager", "client"}))
}
