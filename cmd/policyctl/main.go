package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/upb/governance-ledger/auth"
	"github.com/upb/governance-ledger/config"
	"github.com/upb/governance-ledger/internal/observability"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/policy"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli carries the per-invocation settings shared by every subcommand
type cli struct {
	v   *viper.Viper
	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "policyctl",
		Short: "Inspect and exercise governance policy documents",
		Long: `policyctl works with the policy documents the governance server enforces.
- validate: check a document against the policy schema.
- rules: list the rules of a document (the built-in set when --file is empty).
- check: evaluate an actor against a capability and scope, offline.
- token: sign a bearer token for the governance API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().String("log-level", "warn", "log level")
	_ = c.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = c.v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	c.v.SetEnvPrefix("GOVLEDGER")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(c.validateCmd())
	root.AddCommand(c.rulesCmd())
	root.AddCommand(c.checkCmd())
	root.AddCommand(c.tokenCmd())
	return root
}

func (c *cli) validateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a policy document",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := policy.ParseFile(file)
			if err != nil {
				return err
			}
			if c.v.GetBool("json") {
				return c.printJSON(map[string]any{
					"valid":   true,
					"source":  doc.Source,
					"version": doc.Version,
					"rules":   len(doc.Rules),
				})
			}
			fmt.Fprintf(c.out, "%s: valid (version %s, %d rules)\n", doc.Source, doc.Version, len(doc.Rules))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "policy document (YAML or JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// ruleView is the listing shape of one rule
type ruleView struct {
	PolicyID     string                `json:"policyId"`
	Actor        models.ActorType      `json:"actor"`
	Capability   models.Capability     `json:"capability"`
	Scope        models.Scope          `json:"scope"`
	ReviewQuorum []models.ReviewerType `json:"reviewQuorum"`
	MinApprovals int                   `json:"minApprovals"`
	Reversible   bool                  `json:"reversible"`
	Conditions   []string              `json:"conditions"`
}

func (c *cli) rulesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List policy rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := policy.Builtin()
			if file != "" {
				parsed, err := policy.ParseFile(file)
				if err != nil {
					return err
				}
				doc = parsed
			}

			views := make([]ruleView, 0, len(doc.Rules))
			for i := range doc.Rules {
				views = append(views, viewRule(&doc.Rules[i]))
			}
			if c.v.GetBool("json") {
				return c.printJSON(views)
			}

			tw := c.newTable()
			tw.AppendHeader(table.Row{"Actor", "Capability", "Scope", "Quorum", "Min", "Reversible", "Conditions"})
			for _, r := range views {
				tw.AppendRow(table.Row{r.Actor, r.Capability, r.Scope, joinReviewers(r.ReviewQuorum), r.MinApprovals, r.Reversible, strings.Join(r.Conditions, "; ")})
			}
			tw.AppendFooter(table.Row{"", "", "", "", "", "rules", len(views)})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "policy document (defaults to the built-in rules)")
	return cmd
}

func viewRule(rule *models.PolicyRule) ruleView {
	conds := policy.ParseConditions(rule.Conditions)
	described := make([]string, 0, len(conds))
	for _, cond := range conds {
		described = append(described, policy.Describe(cond))
	}
	sort.Strings(described)

	return ruleView{
		PolicyID:     policy.PolicyID(rule),
		Actor:        rule.Actor,
		Capability:   rule.Capability,
		Scope:        rule.Scope,
		ReviewQuorum: append([]models.ReviewerType{}, rule.ReviewQuorum...),
		MinApprovals: policy.MinApprovals(rule),
		Reversible:   policy.IsReversible(rule),
		Conditions:   described,
	}
}

func (c *cli) checkCmd() *cobra.Command {
	var (
		file       string
		actor      models.ActorContext
		actorType  string
		capability string
		scope      string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate an actor against a capability and scope",
		Long: `check runs the same evaluation as POST /api/v1/policy/check without a server.
An unusable --file falls back to the built-in rules, as the server does.
Quorum rules report requiresQuorum; no quorum decision is opened.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor.ActorType = models.ActorType(actorType)
			if !actor.ActorType.IsValid() {
				return fmt.Errorf("invalid --actor-type %q", actorType)
			}

			logger, err := c.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			rules := policy.NewTable(time.Minute, logger)
			enforcer := policy.NewEnforcer(rules, nil, policy.EnforcerConfig{PolicyFile: file}, logger)
			decision := enforcer.CheckPolicy(&actor, models.Capability(capability), models.Scope(scope))

			if c.v.GetBool("json") {
				return c.printJSON(decision)
			}
			tw := c.newTable()
			tw.AppendRows([]table.Row{
				{"Policy", decision.PolicyID},
				{"Allowed", decision.Allowed},
				{"Requires quorum", decision.RequiresQuorum},
				{"Quorum types", joinReviewers(decision.QuorumTypes)},
				{"Reversible", decision.Reversible},
				{"Reason", decision.Reason},
			})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "policy document (defaults to the built-in rules)")
	cmd.Flags().StringVar(&actor.ActorID, "actor-id", "policyctl", "actor identifier")
	cmd.Flags().StringVar(&actorType, "actor-type", "", "actor type (agent, wallet, system, admin)")
	cmd.Flags().StringVar(&capability, "capability", "", "requested capability")
	cmd.Flags().StringVar(&scope, "scope", "", "requested scope")
	cmd.Flags().Float64Var(&actor.TrustScore, "trust", 0, "trust score in [0, 1]")
	cmd.Flags().Float64Var(&actor.StakedTokens, "staked", 0, "staked tokens")
	cmd.Flags().IntVar(&actor.CompletedDreams, "dreams", 0, "completed dreams")
	cmd.Flags().StringSliceVar(&actor.Badges, "badge", nil, "badge held by the actor (repeatable)")
	_ = cmd.MarkFlagRequired("actor-type")
	_ = cmd.MarkFlagRequired("capability")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		claims    auth.Claims
		actorType string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the governance API",
		Long: `token signs an HS256 bearer token with the server secret.
The secret and issuer may come from GOVLEDGER_SECRET and GOVLEDGER_ISSUER.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := auth.NewIssuer(auth.Config{
				Secret: c.v.GetString("secret"),
				Issuer: c.v.GetString("issuer"),
			})
			if err != nil {
				return err
			}

			claims.ActorType = models.ActorType(actorType)
			token, err := issuer.Issue(claims, ttl)
			if err != nil {
				return err
			}

			if c.v.GetBool("json") {
				return c.printJSON(map[string]any{
					"token":     token,
					"actorId":   claims.Subject,
					"actorType": claims.ActorType,
					"expiresIn": ttl.String(),
				})
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	cmd.Flags().String("secret", "", "signing secret (at least 32 bytes)")
	cmd.Flags().String("issuer", "governance-ledger", "token issuer")
	_ = c.v.BindPFlag("secret", cmd.Flags().Lookup("secret"))
	_ = c.v.BindPFlag("issuer", cmd.Flags().Lookup("issuer"))

	cmd.Flags().StringVar(&claims.Subject, "actor-id", "", "actor identifier (token subject)")
	cmd.Flags().StringVar(&actorType, "actor-type", "", "actor type (agent, wallet, system, admin)")
	cmd.Flags().Float64Var(&claims.TrustScore, "trust", 0, "trust score in [0, 1]")
	cmd.Flags().Float64Var(&claims.StakedTokens, "staked", 0, "staked tokens")
	cmd.Flags().IntVar(&claims.CompletedDreams, "dreams", 0, "completed dreams")
	cmd.Flags().StringSliceVar(&claims.Badges, "badge", nil, "badge held by the actor (repeatable)")
	cmd.Flags().StringSliceVar(&claims.Roles, "role", nil, "role granted to the caller (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("actor-id")
	_ = cmd.MarkFlagRequired("actor-type")
	return cmd
}

func (c *cli) logger() (*zap.Logger, error) {
	return observability.NewLogger(config.ObservabilityConfig{
		LogLevel:  c.v.GetString("log-level"),
		LogFormat: "text",
	})
}

func (c *cli) newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	tw.SetStyle(table.StyleLight)
	return tw
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinReviewers(types []models.ReviewerType) string {
	if len(types) == 0 {
		return "-"
	}
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
