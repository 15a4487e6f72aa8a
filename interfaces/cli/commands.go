package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"referralnet-backend/application/commands"
	"referralnet-backend/application/ports"
	"referralnet-backend/application/queries"
	"referralnet-backend/application/services"
	"referralnet-backend/domain/network"
	"referralnet-backend/interfaces/http/rest/handlers"

	"github.com/spf13/cobra"
)

// ErrIssuesFound is returned by validate --fail-on-issues when the network
// has structural anomalies
var ErrIssuesFound = errors.New("integrity issues found")

func (s *session) runForest(cmd *cobra.Command, args []string) error {
	result, err := s.container.QueryBus.Ask(cmd.Context(), queries.GetForestQuery{})
	if err != nil {
		return err
	}
	forest := result.(*network.Forest)

	out := cmd.OutOrStdout()
	if s.asJSON {
		return writeJSON(out, handlers.NewForestResponse(forest))
	}

	for _, root := range forest.Roots {
		printNode(out, root, 0)
	}
	printStats(out, forest.Stats)
	return nil
}

func (s *session) runValidate(cmd *cobra.Command, args []string) error {
	failOnIssues, _ := cmd.Flags().GetBool("fail-on-issues")

	result, err := s.container.QueryBus.Ask(cmd.Context(), queries.GetIntegrityReportQuery{})
	if err != nil {
		return err
	}
	report := result.(*services.IntegrityReport)

	out := cmd.OutOrStdout()
	if s.asJSON {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		if len(report.Issues) == 0 {
			fmt.Fprintln(out, "No integrity issues found")
		}
		for _, issue := range report.Issues {
			printIssue(out, issue)
		}
		printStats(out, report.Stats)
	}

	if failOnIssues && report.Stats.HasIssues() {
		return ErrIssuesFound
	}
	return nil
}

func (s *session) runRepairOrphans(cmd *cobra.Command, args []string) error {
	includeSelfLoops, _ := cmd.Flags().GetBool("include-self-loops")

	result, err := s.container.CommandBus.Send(cmd.Context(), commands.RepairOrphansCommand{
		IncludeSelfLoops: includeSelfLoops,
	})
	if err != nil {
		return err
	}
	return s.printBatch(cmd.OutOrStdout(), "Cleared parents", result.(ports.BatchResult))
}

func (s *session) runNormalizeParents(cmd *cobra.Command, args []string) error {
	result, err := s.container.CommandBus.Send(cmd.Context(), commands.NormalizeParentsCommand{})
	if err != nil {
		return err
	}
	return s.printBatch(cmd.OutOrStdout(), "Normalized parents", result.(ports.BatchResult))
}

func (s *session) runUpline(cmd *cobra.Command, args []string) error {
	result, err := s.container.QueryBus.Ask(cmd.Context(), queries.GetUplineQuery{AgentID: args[0]})
	if err != nil {
		return err
	}
	upline := result.(network.Upline)

	out := cmd.OutOrStdout()
	if s.asJSON {
		return writeJSON(out, upline)
	}

	chain := append([]string{upline.AgentID}, upline.Ancestors...)
	fmt.Fprintln(out, strings.Join(chain, " -> "))
	fmt.Fprintf(out, "stopped: %s", upline.StopReason)
	if upline.Truncated {
		fmt.Fprint(out, " (truncated)")
	}
	fmt.Fprintln(out)
	return nil
}

func (s *session) runReparent(cmd *cobra.Command, args []string) error {
	command := commands.ReparentAgentCommand{AgentID: args[0]}
	if len(args) == 2 {
		command.ParentID = &args[1]
	}

	result, err := s.container.CommandBus.Send(cmd.Context(), command)
	if err != nil {
		return err
	}
	moved := result.(*services.ReparentResult)

	out := cmd.OutOrStdout()
	if s.asJSON {
		return writeJSON(out, moved)
	}
	fmt.Fprintf(out, "Moved %s: %s -> %s\n", moved.AgentID, parentLabel(moved.OldParentID), parentLabel(moved.NewParentID))
	return nil
}

func (s *session) runAssign(cmd *cobra.Command, args []string) error {
	region, _ := cmd.Flags().GetString("region")
	leadIDs, _ := cmd.Flags().GetStringSlice("lead")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	result, err := s.container.CommandBus.Send(cmd.Context(), commands.AssignLeadsCommand{
		Region:  region,
		LeadIDs: leadIDs,
		DryRun:  dryRun,
	})
	if err != nil {
		return err
	}
	outcome := result.(*services.AssignmentOutcome)

	out := cmd.OutOrStdout()
	if s.asJSON {
		return writeJSON(out, outcome)
	}

	assignments := outcome.Plan.Assignments
	if outcome.Result != nil {
		assignments = outcome.Result.Assignments
	}
	for _, a := range assignments {
		fmt.Fprintf(out, "%s -> %s [%s]\n", a.LeadID, a.AgentID, a.Region)
	}
	unassigned := outcome.Plan.Unassigned
	if outcome.Result != nil {
		unassigned = outcome.Result.Unassigned
		for _, f := range outcome.Result.Failures {
			fmt.Fprintf(out, "failed %s: %s\n", f.LeadID, f.Reason)
		}
	}
	if len(unassigned) > 0 {
		fmt.Fprintf(out, "no eligible agent: %s\n", strings.Join(unassigned, ", "))
	}
	if outcome.DryRun {
		fmt.Fprintf(out, "Dry run: %d planned\n", len(assignments))
	} else {
		fmt.Fprintf(out, "Assigned %d leads\n", len(assignments))
	}
	return nil
}

func (s *session) runAttribute(cmd *cobra.Command, args []string) error {
	result, err := s.container.CommandBus.Send(cmd.Context(), commands.AttributeLeadCommand{
		LeadID:  args[0],
		AgentID: args[1],
	})
	if err != nil {
		return err
	}
	attribution := result.(*services.Attribution)

	out := cmd.OutOrStdout()
	if s.asJSON {
		return writeJSON(out, attribution)
	}
	fmt.Fprintf(out, "Lead %s assigned to %s, visible to %s\n",
		attribution.LeadID, attribution.AgentID, strings.Join(attribution.Upline.VisibleTo(), ", "))
	return nil
}

func (s *session) printBatch(out io.Writer, label string, result ports.BatchResult) error {
	if s.asJSON {
		return writeJSON(out, result)
	}
	fmt.Fprintf(out, "%s: %d of %d\n", label, result.Changed, result.Requested)
	for _, f := range result.Failures {
		fmt.Fprintf(out, "failed %s: %s\n", f.ID, f.Reason)
	}
	return nil
}

func printNode(out io.Writer, n *network.Node, depth int) {
	fmt.Fprintf(out, "%s%s (%s) [%s] leads=%d/%d downline=%d%s\n",
		strings.Repeat("  ", depth), n.DisplayName, n.ID, n.Role,
		n.DirectLeadCount, n.TotalLeadCount, n.TotalDownlineCount, nodeFlags(n))
	for _, child := range n.Children {
		printNode(out, child, depth+1)
	}
}

func nodeFlags(n *network.Node) string {
	var flags []string
	if n.IsOrphan {
		flags = append(flags, "orphan")
	}
	if n.HasSelfLoop {
		flags = append(flags, "self-loop")
	}
	if n.IsInCycle {
		flags = append(flags, "cycle")
	}
	if len(flags) == 0 {
		return ""
	}
	return " !" + strings.Join(flags, ",")
}

func printIssue(out io.Writer, issue network.Issue) {
	fmt.Fprintf(out, "%-9s %s (%s)", issue.Type, issue.NodeName, issue.NodeID)
	if issue.InvalidParentID != "" {
		fmt.Fprintf(out, " parent=%s", issue.InvalidParentID)
	}
	if len(issue.CycleMembers) > 0 {
		fmt.Fprintf(out, " members=%s", strings.Join(issue.CycleMembers, ","))
	}
	fmt.Fprintln(out)
}

func printStats(out io.Writer, stats network.Stats) {
	fmt.Fprintf(out, "agents=%d roots=%d directLeads=%d orphans=%d selfLoops=%d cycles=%d\n",
		stats.TotalAgents, stats.RootCount, stats.TotalDirectLeads,
		stats.OrphanCount, stats.SelfLoopCount, stats.CycleCount)
}

func parentLabel(id *string) string {
	if id == nil {
		return "(root)"
	}
	return *id
}
