package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"referralnet-backend/infrastructure/config"
	"referralnet-backend/infrastructure/di"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
agents:
  - id: root
    displayName: Root
    role: team_lead
    region: EU
    canRecruit: true
  - id: mid
    displayName: Mid
    region: EU
    parentId: root
  - id: lost
    displayName: Lost
    region: US
    parentId: gone
  - id: retired
    displayName: Retired
    isActive: false
leads:
  - id: l-1
    region: eu
    assignedAgentId: mid
  - id: l-2
    region: EU
  - id: l-3
    region: APAC
`

func memoryLoader(t *testing.T) Loader {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ENABLE_EVENTS", "false")
	t.Setenv("ENABLE_TRACING", "false")
	t.Setenv("ENABLE_CLOUDWATCH", "false")
	t.Setenv("LOG_LEVEL", "error")

	return func(ctx context.Context) (*di.Container, func(), error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		return di.InitializeContainer(ctx, cfg)
	}
}

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(memoryLoader(t))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--seed", writeSeed(t)))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestForest_JSON(t *testing.T) {
	out, err := run(t, "forest", "--json")
	require.NoError(t, err)

	var body struct {
		Roots []struct {
			ID                 string `json:"id"`
			TotalDownlineCount int    `json:"totalDownlineCount"`
			TotalLeadCount     int    `json:"totalLeadCount"`
		} `json:"roots"`
		Stats struct {
			TotalAgents int `json:"totalAgents"`
			OrphanCount int `json:"orphanCount"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))

	require.Len(t, body.Roots, 2)
	assert.Equal(t, "lost", body.Roots[0].ID)
	assert.Equal(t, "root", body.Roots[1].ID)
	assert.Equal(t, 1, body.Roots[1].TotalDownlineCount)
	assert.Equal(t, 1, body.Roots[1].TotalLeadCount)
	assert.Equal(t, 3, body.Stats.TotalAgents)
	assert.Equal(t, 1, body.Stats.OrphanCount)
}

func TestForest_Text(t *testing.T) {
	out, err := run(t, "forest")
	require.NoError(t, err)

	assert.Contains(t, out, "Lost (lost) [agent] leads=0/0 downline=0 !orphan\n")
	assert.Contains(t, out, "Root (root) [team_lead] leads=0/1 downline=1\n")
	assert.Contains(t, out, "  Mid (mid) [agent] leads=1/1 downline=0\n")
	assert.NotContains(t, out, "Retired")
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "orphan")
	assert.Contains(t, out, "parent=gone")

	_, err = run(t, "validate", "--fail-on-issues")
	assert.ErrorIs(t, err, ErrIssuesFound)
}

func TestRepairOrphans(t *testing.T) {
	out, err := run(t, "repair-orphans", "--json")
	require.NoError(t, err)

	var result struct {
		Requested int `json:"requested"`
		Changed   int `json:"changed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Requested)
	assert.Equal(t, 1, result.Changed)
}

func TestUpline(t *testing.T) {
	out, err := run(t, "upline", "mid")
	require.NoError(t, err)
	assert.Contains(t, out, "mid -> root\n")
	assert.Contains(t, out, "stopped: root")

	_, err = run(t, "upline")
	assert.Error(t, err)
}

func TestReparent(t *testing.T) {
	out, err := run(t, "reparent", "lost", "root")
	require.NoError(t, err)
	assert.Equal(t, "Moved lost: gone -> root\n", out)

	_, err = run(t, "reparent", "root", "mid")
	assert.Error(t, err, "moving a node below its own descendant is rejected")
}

func TestAssign_DryRun(t *testing.T) {
	out, err := run(t, "assign", "--dry-run", "--json")
	require.NoError(t, err)

	var outcome struct {
		DryRun bool `json:"dryRun"`
		Plan   struct {
			Assignments []struct {
				LeadID string `json:"leadId"`
			} `json:"assignments"`
			Unassigned []string `json:"unassigned"`
		} `json:"plan"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.True(t, outcome.DryRun)
	require.Len(t, outcome.Plan.Assignments, 1)
	assert.Equal(t, "l-2", outcome.Plan.Assignments[0].LeadID)
	assert.Equal(t, []string{"l-3"}, outcome.Plan.Unassigned)
}

func TestAttribute(t *testing.T) {
	out, err := run(t, "attribute", "l-2", "mid")
	require.NoError(t, err)
	assert.Equal(t, "Lead l-2 assigned to mid, visible to mid, root\n", out)
}

func TestSeed_RejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - id: x\n    role: wizard\n"), 0o600))

	cmd := NewRootCommand(memoryLoader(t))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"forest", "--seed", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}
