package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/gantry/internal/capability"
	"github.com/loomworks/gantry/internal/engine"
	"github.com/loomworks/gantry/internal/trace"
)

type fakeCredentials struct {
	tokens map[string]string // integration id -> token
	calls  int
}

func (f *fakeCredentials) GetValidAccessToken(_ context.Context, _ string, integrationID string) (string, error) {
	f.calls++
	token, ok := f.tokens[integrationID]
	if !ok {
		return "", errors.New("no grant on file")
	}
	return token, nil
}

func runnerRegistry(t *testing.T) (*capability.Registry, *[]string) {
	t.Helper()
	var seenTokens []string
	reg := capability.NewRegistry()
	reg.Register(capability.Definition{
		ID:            "github_issues_list",
		IntegrationID: "github",
		Mode:          capability.ModeRead,
		Execute: func(ctx context.Context, params map[string]any, ec *capability.Context) (any, error) {
			seenTokens = append(seenTokens, ec.BearerToken)
			return []string{"issue-1", "issue-2"}, nil
		},
	})
	reg.Register(capability.Definition{
		ID:            "linear_issues_list",
		IntegrationID: "linear",
		Mode:          capability.ModeRead,
		Execute: func(ctx context.Context, params map[string]any, ec *capability.Context) (any, error) {
			return nil, errors.New("upstream 502")
		},
	})
	return reg, &seenTokens
}

// TestRunner_PerPlanBoundary verifies one failing plan yields an error
// result for its view without affecting siblings.
func TestRunner_PerPlanBoundary(t *testing.T) {
	reg, _ := runnerRegistry(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := NewRunner(engine.NewExecutor(reg, trace.NewMemoryStore()),
		WithRunnerNow(func() time.Time { return now }))

	ec := &capability.Context{
		OrgID:       "org-1",
		Permissions: []capability.Permission{{Integration: capability.Wildcard, Capability: capability.Wildcard, Access: capability.AccessRead}},
	}
	results := r.Run(context.Background(), []Plan{
		{ViewID: "broken", IntegrationID: "linear", CapabilityID: "linear_issues_list"},
		{ViewID: "healthy", IntegrationID: "github", CapabilityID: "github_issues_list"},
	}, ec)

	require.Len(t, results, 2)

	byView := map[string]Result{}
	for _, res := range results {
		byView[res.ViewID] = res
	}

	assert.Equal(t, StatusError, byView["broken"].Status)
	assert.Contains(t, byView["broken"].Error, "upstream 502")

	healthy := byView["healthy"]
	assert.Equal(t, StatusSuccess, healthy.Status)
	assert.Equal(t, []string{"issue-1", "issue-2"}, healthy.Data)
	assert.Equal(t, SourceLive, healthy.Source)
	assert.Equal(t, now, healthy.Timestamp)
}

// TestRunner_CredentialWiring verifies the acquired bearer token is
// visible to the capability executor.
func TestRunner_CredentialWiring(t *testing.T) {
	reg, seenTokens := runnerRegistry(t)
	creds := &fakeCredentials{tokens: map[string]string{"github": "gho_test"}}
	r := NewRunner(engine.NewExecutor(reg, trace.NewMemoryStore()),
		WithCredentialProvider(creds))

	ec := &capability.Context{
		OrgID:       "org-1",
		Permissions: []capability.Permission{{Integration: capability.Wildcard, Capability: capability.Wildcard, Access: capability.AccessRead}},
	}
	results := r.Run(context.Background(), []Plan{
		{ViewID: "v1", IntegrationID: "github", CapabilityID: "github_issues_list"},
	}, ec)

	require.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, 1, creds.calls)
	assert.Equal(t, []string{"gho_test"}, *seenTokens)
}

// TestRunner_CredentialFailureIsolated verifies a token failure errors
// that plan only and never reaches the executor.
func TestRunner_CredentialFailureIsolated(t *testing.T) {
	reg, seenTokens := runnerRegistry(t)
	creds := &fakeCredentials{tokens: map[string]string{"github": "gho_test"}}
	r := NewRunner(engine.NewExecutor(reg, trace.NewMemoryStore()),
		WithCredentialProvider(creds))

	ec := &capability.Context{
		OrgID:       "org-1",
		Permissions: []capability.Permission{{Integration: capability.Wildcard, Capability: capability.Wildcard, Access: capability.AccessRead}},
	}
	results := r.Run(context.Background(), []Plan{
		{ViewID: "denied", IntegrationID: "jira", CapabilityID: "github_issues_list"},
		{ViewID: "granted", IntegrationID: "github", CapabilityID: "github_issues_list"},
	}, ec)

	require.Len(t, results, 2)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Contains(t, results[0].Error, "acquire credential")
	assert.Equal(t, StatusSuccess, results[1].Status)
	assert.Len(t, *seenTokens, 1, "capability must not run without a credential")
}
