package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-ledger/auth"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/policy"
)

const testSecret = "policyctl-test-secret-with-32-plus-bytes"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCmd(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		path := writeFile(t, `version: "v2"
rules:
  - actor: agent
    capability: publish
    scope: dream
    reversible: true
`)
		out, err := execute(t, "validate", "--file", path)
		require.NoError(t, err)
		assert.Contains(t, out, "valid (version v2, 1 rules)")
	})

	t.Run("json output", func(t *testing.T) {
		path := writeFile(t, `{"version":"v3","rules":[{"actor":"admin","capability":"deploy","scope":"global","reversible":false,"review_quorum":["tech"]}]}`)
		out, err := execute(t, "validate", "--json", "-f", path)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, true, got["valid"])
		assert.Equal(t, "v3", got["version"])
		assert.Equal(t, float64(1), got["rules"])
	})

	t.Run("schema violation", func(t *testing.T) {
		path := writeFile(t, "rules:\n  - {actor: robot, capability: publish, scope: dream, reversible: true}\n")
		_, err := execute(t, "validate", "--file", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation failed")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "validate", "--file", filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("file flag required", func(t *testing.T) {
		_, err := execute(t, "validate")
		assert.Error(t, err)
	})
}

func TestRulesCmd(t *testing.T) {
	t.Run("builtin rules as json", func(t *testing.T) {
		out, err := execute(t, "rules", "--json")
		require.NoError(t, err)

		var views []ruleView
		require.NoError(t, json.Unmarshal([]byte(out), &views))
		require.Len(t, views, len(policy.Builtin().Rules))

		first := views[0]
		assert.Equal(t, models.ActorTypeAgent, first.Actor)
		assert.Equal(t, models.Capability("publish"), first.Capability)
		assert.Equal(t, []string{"trustScore >= 0.5"}, first.Conditions)
		assert.Equal(t, policy.PolicyID(&policy.Builtin().Rules[0]), first.PolicyID)

		var deploy ruleView
		for _, v := range views {
			if v.Capability == "deploy" {
				deploy = v
			}
		}
		assert.Equal(t, 2, deploy.MinApprovals)
		assert.False(t, deploy.Reversible)
	})

	t.Run("table output", func(t *testing.T) {
		out, err := execute(t, "rules")
		require.NoError(t, err)
		assert.Contains(t, out, "monetize")
		assert.Contains(t, out, "finance, safety")
		assert.Contains(t, out, "badges include [verified]")
	})

	t.Run("rules from file", func(t *testing.T) {
		path := writeFile(t, "rules:\n  - {actor: wallet, capability: archive, scope: token, reversible: true}\n")
		out, err := execute(t, "rules", "--json", "--file", path)
		require.NoError(t, err)

		var views []ruleView
		require.NoError(t, json.Unmarshal([]byte(out), &views))
		require.Len(t, views, 1)
		assert.Equal(t, models.ActorTypeWallet, views[0].Actor)
		assert.Empty(t, views[0].ReviewQuorum)
	})
}

func TestCheckCmd(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantAllowed    bool
		wantQuorum     bool
		wantReason     string
		wantQuorumType []models.ReviewerType
	}{
		{
			name:        "agent remix allowed",
			args:        []string{"--actor-type", "agent", "--capability", "remix", "--scope", "dream"},
			wantAllowed: true,
		},
		{
			name:       "agent publish below trust",
			args:       []string{"--actor-type", "agent", "--capability", "publish", "--scope", "dream", "--trust", "0.2"},
			wantReason: policy.ReasonConditionsNotMet,
		},
		{
			name:           "wallet monetize needs quorum",
			args:           []string{"--actor-type", "wallet", "--capability", "monetize", "--scope", "token", "--staked", "500"},
			wantQuorum:     true,
			wantReason:     policy.ReasonQuorumRequired,
			wantQuorumType: []models.ReviewerType{models.ReviewerFinance, models.ReviewerSafety},
		},
		{
			name:           "wallet payout with badge",
			args:           []string{"--actor-type", "wallet", "--capability", "payout", "--scope", "token", "--trust", "0.9", "--badge", "verified"},
			wantQuorum:     true,
			wantReason:     policy.ReasonQuorumRequired,
			wantQuorumType: []models.ReviewerType{models.ReviewerFinance, models.ReviewerSafety},
		},
		{
			name:       "unmatched request",
			args:       []string{"--actor-type", "agent", "--capability", "deploy", "--scope", "global"},
			wantReason: policy.ReasonNoRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"check", "--json"}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)

			var decision models.PolicyDecision
			require.NoError(t, json.Unmarshal([]byte(out), &decision))
			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			assert.Equal(t, tt.wantQuorum, decision.RequiresQuorum)
			assert.Equal(t, tt.wantReason, decision.Reason)
			if tt.wantQuorumType != nil {
				assert.Equal(t, tt.wantQuorumType, decision.QuorumTypes)
			}
		})
	}

	t.Run("table output", func(t *testing.T) {
		out, err := execute(t, "check", "--actor-type", "agent", "--capability", "archive", "--scope", "dream")
		require.NoError(t, err)
		assert.Contains(t, out, "Allowed")
		assert.Contains(t, out, "true")
	})

	t.Run("invalid actor type", func(t *testing.T) {
		_, err := execute(t, "check", "--actor-type", "robot", "--capability", "remix", "--scope", "dream")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --actor-type")
	})

	t.Run("missing required flags", func(t *testing.T) {
		_, err := execute(t, "check", "--actor-type", "agent")
		assert.Error(t, err)
	})
}

func TestTokenCmd(t *testing.T) {
	validator, err := auth.NewHMACValidator(auth.Config{Secret: testSecret, Issuer: "governance-ledger"})
	require.NoError(t, err)

	t.Run("signs a verifiable token", func(t *testing.T) {
		out, err := execute(t, "token",
			"--secret", testSecret,
			"--actor-id", "wallet-42",
			"--actor-type", "wallet",
			"--staked", "250",
			"--badge", "verified",
			"--role", "admin")
		require.NoError(t, err)

		claims, err := validator.ValidateToken(context.Background(), strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "wallet-42", claims.Subject)
		assert.Equal(t, models.ActorTypeWallet, claims.ActorType)
		assert.Equal(t, 250.0, claims.StakedTokens)
		assert.Equal(t, []string{"verified"}, claims.Badges)
		assert.True(t, claims.IsAdmin())
	})

	t.Run("secret from environment", func(t *testing.T) {
		t.Setenv("GOVLEDGER_SECRET", testSecret)

		out, err := execute(t, "token", "--json", "--actor-id", "agent-7", "--actor-type", "agent")
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "agent-7", got["actorId"])

		claims, err := validator.ValidateToken(context.Background(), got["token"].(string))
		require.NoError(t, err)
		assert.Equal(t, models.ActorTypeAgent, claims.ActorType)
	})

	t.Run("short secret", func(t *testing.T) {
		_, err := execute(t, "token", "--secret", "short", "--actor-id", "a", "--actor-type", "agent")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrSecretTooShort)
	})

	t.Run("invalid claims", func(t *testing.T) {
		_, err := execute(t, "token", "--secret", testSecret, "--actor-id", "a", "--actor-type", "agent", "--trust", "1.5")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidClaim)
	})
}
