package domain_test

import (
	"errors"
	"testing"

	"github.com/aretw0/preflight/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestRunState_Transitions(t *testing.T) {
	path := []domain.RunState{
		domain.StateReceived,
		domain.StateClassified,
		domain.StateRegionResolved,
		domain.StateDomainResolved,
		domain.StateGated,
		domain.StateProceeding,
		domain.StateComposed,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransition(path[i+1]), "%s -> %s", path[i], path[i+1])
	}

	assert.True(t, domain.StateGated.CanTransition(domain.StateBlocked))
	assert.False(t, domain.StateReceived.CanTransition(domain.StateGated), "stages cannot be skipped")
	assert.False(t, domain.StateBlocked.CanTransition(domain.StateProceeding))

	assert.True(t, domain.StateBlocked.Terminal())
	assert.True(t, domain.StateComposed.Terminal())
	assert.False(t, domain.StateGated.Terminal())
}

func TestErrors_Unwrap(t *testing.T) {
	var err error = &domain.ConfigError{Path: "kg_config.json", Reason: "project_profile_rules not configured"}
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Contains(t, err.Error(), "kg_config.json")

	err = &domain.IntegrityError{PackID: "p1", Problems: []string{"missing: a.json"}}
	assert.ErrorIs(t, err, domain.ErrPackInvalid)

	cause := errors.New("boom")
	r := domain.Failed[[]domain.Section]("compose", cause)
	assert.False(t, r.IsOK())
	assert.ErrorIs(t, r.Err, cause)
	assert.True(t, domain.OK(1).IsOK())
}
