package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"phasegate/cmd/phasegate/ui"
	"phasegate/internal/types"
)

var (
	watchStatus bool
	showRaw     bool
)

// statusCmd derives the phase snapshot by replaying the event log.
var statusCmd = &cobra.Command{
	Use:   "status <feature> [role]",
	Short: "Show phase states for a feature",
	Long: `Derives the current state of every phase (or one role's phase) by
replaying the feature's document and verdict log. With --watch, keeps a live
view open that refreshes whenever the database changes.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStatus,
}

// logCmd prints the replayed audit log.
var logCmd = &cobra.Command{
	Use:   "log <feature>",
	Short: "Show the ordered document and verdict log",
	Long: `Replays the feature's append-only event log in write order. Every
request, iteration, handoff, and verdict appears exactly once; rejected
iterations and their feedback stay inspectable forever.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

// showCmd prints one document's payload, subject to access control.
var showCmd = &cobra.Command{
	Use:   "show <feature> <role> <request|iteration|handoff> <seq>",
	Short: "Print a document payload (access-checked)",
	Long: `Reads one document from a workspace as the acting role (--role).
Non-owners reach only handoff documents targeted at them; everything else
fails closed with an access denial that does not reveal whether the
document exists.

Markdown payloads render styled; use --raw for the exact stored bytes.`,
	Args: cobra.ExactArgs(4),
	RunE: runShow,
}

func init() {
	statusCmd.Flags().BoolVar(&watchStatus, "watch", false, "Keep a live view open, refreshing on database changes")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print the payload without markdown rendering")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := types.FeatureID(args[0])
	var role types.Role
	if len(args) == 2 {
		role = types.Role(args[1])
	}

	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	if watchStatus {
		fetch := func() (*types.FeatureStatusView, error) { return c.Status(id, role) }
		return ui.RunWatch(fetch, cfg.Storage.DatabasePath)
	}

	view, err := c.Status(id, role)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(view)
	}
	printStatus(view)
	return nil
}

func printStatus(view *types.FeatureStatusView) {
	styles := ui.DefaultStyles()
	fmt.Println(styles.Title.Render(fmt.Sprintf("%s (%s)", view.Feature.ID, view.Feature.Status)))

	tbl := ui.NewSimpleTable("", []string{"Phase", "State", "Iterations", "Latest verdict", "Handoffs"})
	for _, p := range view.Phases {
		verdict := "-"
		if len(p.LatestVerdicts) > 0 {
			parts := make([]string, len(p.LatestVerdicts))
			for i, v := range p.LatestVerdicts {
				parts[i] = fmt.Sprintf("%s:%s", v.Signoff, v.Outcome)
			}
			verdict = strings.Join(parts, " ")
		}
		handoffs := "-"
		if n := len(p.VisibleHandoffs); n > 0 {
			handoffs = strconv.Itoa(n)
		}
		tbl.AddRow(string(p.Role), styles.RenderState(p.State), strconv.Itoa(p.Iterations), verdict, handoffs)
	}
	fmt.Println(tbl.View(styles))
}

func runLog(cmd *cobra.Command, args []string) error {
	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	events, err := c.EventLog(types.FeatureID(args[0]))
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(events)
	}

	styles := ui.DefaultStyles()
	for i, e := range events {
		switch e.Kind {
		case types.EventDocument:
			d := e.Document
			fmt.Printf("%3d  %s  %s/%s %s\n", i+1,
				e.At.Format("2006-01-02 15:04:05"),
				d.FeatureID, d.Workspace,
				styles.Accent.Render(d.Name()))
		case types.EventVerdict:
			v := e.Verdict
			line := fmt.Sprintf("verdict %s:%s on iteration %02d", v.Signoff, v.Outcome, v.IterationSeq)
			fmt.Printf("%3d  %s  %s/%s %s\n", i+1,
				e.At.Format("2006-01-02 15:04:05"),
				v.FeatureID, v.Workspace,
				styles.RenderOutcome(v.Outcome, line))
			for _, item := range v.Feedback {
				fmt.Printf("        [%s] %s: %s (fix: %s)\n", item.Severity, item.Location, item.Problem, item.RequiredFix)
			}
		}
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	kind := types.DocKind(strings.ToLower(args[2]))
	seq, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("seq must be a number: %w", err)
	}

	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	doc, err := c.Show(actor(), types.FeatureID(args[0]), types.Role(args[1]), kind, seq)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(doc)
	}
	if showRaw {
		fmt.Print(doc.Payload)
		if !strings.HasSuffix(doc.Payload, "\n") {
			fmt.Println()
		}
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		if out, rerr := renderer.Render(doc.Payload); rerr == nil {
			fmt.Print(out)
			return nil
		}
	}
	fmt.Println(doc.Payload)
	return nil
}
