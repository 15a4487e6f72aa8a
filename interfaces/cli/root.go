// Package cli implements the referralctl admin commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"referralnet-backend/infrastructure/config"
	"referralnet-backend/infrastructure/di"

	"github.com/spf13/cobra"
)

// Loader builds the dependency container for one command run
type Loader func(ctx context.Context) (*di.Container, func(), error)

// DefaultLoader reads configuration from the environment
func DefaultLoader(ctx context.Context) (*di.Container, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return di.InitializeContainer(ctx, cfg)
}

// session is the state shared by the subcommands of one invocation
type session struct {
	load      Loader
	container *di.Container
	cleanup   func()
	asJSON    bool
	seedFile  string
}

// NewRootCommand builds the referralctl command tree
func NewRootCommand(load Loader) *cobra.Command {
	s := &session{load: load}

	rootCmd := &cobra.Command{
		Use:   "referralctl",
		Short: "Inspect and repair the referral network",
		Long: `referralctl reads the configured node store, assembles the referral
forest and runs the same repairs and assignments the API exposes.

The store is selected with STORE_BACKEND. With the memory backend a
YAML snapshot can be loaded with --seed.`,
		SilenceUsage:      true,
		PersistentPreRunE: s.open,
	}
	rootCmd.PersistentFlags().BoolVar(&s.asJSON, "json", false, "Print machine-readable output")
	rootCmd.PersistentFlags().StringVar(&s.seedFile, "seed", "", "YAML snapshot to load into the memory store")

	forestCmd := &cobra.Command{
		Use:   "forest",
		Short: "Print the referral forest with aggregated counts",
		Args:  cobra.NoArgs,
		RunE:  s.closing(s.runForest),
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Report orphans, self-loops and cycles",
		Args:  cobra.NoArgs,
		RunE:  s.closing(s.runValidate),
	}
	validateCmd.Flags().Bool("fail-on-issues", false, "Exit non-zero when any issue is found")

	repairCmd := &cobra.Command{
		Use:   "repair-orphans",
		Short: "Clear parent pointers that do not resolve to an active agent",
		Args:  cobra.NoArgs,
		RunE:  s.closing(s.runRepairOrphans),
	}
	repairCmd.Flags().Bool("include-self-loops", false, "Also clear agents that are their own parent")

	normalizeCmd := &cobra.Command{
		Use:   "normalize-parents",
		Short: "Rewrite blank parent ids to null",
		Args:  cobra.NoArgs,
		RunE:  s.closing(s.runNormalizeParents),
	}

	uplineCmd := &cobra.Command{
		Use:   "upline <agentID>",
		Short: "Show the ancestors of an agent, parent first",
		Args:  cobra.ExactArgs(1),
		RunE:  s.closing(s.runUpline),
	}

	reparentCmd := &cobra.Command{
		Use:   "reparent <agentID> [parentID]",
		Short: "Move an agent below a new parent, or make it a root",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  s.closing(s.runReparent),
	}

	assignCmd := &cobra.Command{
		Use:   "assign",
		Short: "Distribute unassigned leads round-robin within each region",
		Args:  cobra.NoArgs,
		RunE:  s.closing(s.runAssign),
	}
	assignCmd.Flags().String("region", "", "Only assign leads of this region")
	assignCmd.Flags().StringSlice("lead", nil, "Only assign these lead ids")
	assignCmd.Flags().Bool("dry-run", false, "Print the plan without writing")

	attributeCmd := &cobra.Command{
		Use:   "attribute <leadID> <agentID>",
		Short: "Assign a lead to an agent and share it with the upline",
		Args:  cobra.ExactArgs(2),
		RunE:  s.closing(s.runAttribute),
	}

	rootCmd.AddCommand(
		forestCmd,
		validateCmd,
		repairCmd,
		normalizeCmd,
		uplineCmd,
		reparentCmd,
		assignCmd,
		attributeCmd,
	)
	return rootCmd
}

func (s *session) open(cmd *cobra.Command, args []string) error {
	container, cleanup, err := s.load(cmd.Context())
	if err != nil {
		return err
	}
	s.container = container
	s.cleanup = cleanup

	if s.seedFile != "" {
		if container.Stores.Memory == nil {
			s.close()
			return fmt.Errorf("--seed requires STORE_BACKEND=%s", config.StoreMemory)
		}
		if err := loadSeed(s.seedFile, container.Stores.Memory); err != nil {
			s.close()
			return err
		}
	}
	return nil
}

// closing releases the container once the command body returns
func (s *session) closing(run func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer s.close()
		return run(cmd, args)
	}
}

func (s *session) close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	if s.container != nil {
		_ = s.container.Logger.Sync()
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
