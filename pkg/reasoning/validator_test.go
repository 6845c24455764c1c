package reasoning

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

func TestValidatorAcceptsConformingPlan(t *testing.T) {
	v, err := NewOutputValidator(DefaultSchemas())
	require.NoError(t, err)

	plan := json.RawMessage(`{
		"method": "POST",
		"path": "/repos/acme/site/issues",
		"body": {"title": "deploy failed"},
		"inverse": {"method": "DELETE", "path": "/repos/acme/site/issues/42"}
	}`)
	require.NoError(t, v.Validate("create_issue", plan))
}

func TestValidatorRejectsMissingMethod(t *testing.T) {
	v, err := NewOutputValidator(DefaultSchemas())
	require.NoError(t, err)

	plan := json.RawMessage(`{"path": "/repos/acme/site/issues"}`)
	err = v.Validate("create_issue", plan)
	require.Error(t, err)
	require.Equal(t, types.KindTaskExecution, types.KindOf(err))
}

func TestValidatorRejectsUnknownMethod(t *testing.T) {
	v, err := NewOutputValidator(DefaultSchemas())
	require.NoError(t, err)

	plan := json.RawMessage(`{"method": "BREW", "path": "/coffee"}`)
	err = v.Validate("generic_action", plan)
	require.Error(t, err)
}

func TestValidatorPassesUnknownTaskType(t *testing.T) {
	v, err := NewOutputValidator(DefaultSchemas())
	require.NoError(t, err)

	require.NoError(t, v.Validate("never_registered", json.RawMessage(`{"anything": true}`)))
}

func TestValidatorRejectsMalformedJSON(t *testing.T) {
	v, err := NewOutputValidator(DefaultSchemas())
	require.NoError(t, err)

	err = v.Validate("create_issue", json.RawMessage(`{"method": `))
	require.Error(t, err)
	require.Equal(t, types.KindTaskExecution, types.KindOf(err))
}
