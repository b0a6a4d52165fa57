package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"phasegate/internal/types"
)

var (
	payloadFile string

	verdictIteration int
	verdictSignoff   string
	verdictReviewer  string
	feedbackFile     string
)

// issueRequestCmd opens a phase by writing a RequestDocument.
var issueRequestCmd = &cobra.Command{
	Use:   "issue-request <feature> <role> [payload]",
	Short: "Issue a work request to a role (coordinator only)",
	Long: `Writes the request document into the role's workspace and moves the
phase from NotStarted to AwaitingWork. A phase accepts exactly one request;
re-issuing requires a handoff revision that authorizes it.

The payload comes from the argument, --file, or stdin ("-").`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runIssueRequest,
}

// submitIterationCmd appends a numbered iteration.
var submitIterationCmd = &cobra.Command{
	Use:   "submit-iteration <feature> <role> [payload]",
	Short: "Submit a work iteration for review",
	Long: `Appends the next numbered iteration to the acting role's workspace
and moves the phase to SubmittedForReview. Legal while the phase is
AwaitingWork or Rejected. Iterations are immutable once written.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSubmitIteration,
}

// recordVerdictCmd records a review verdict (coordinator only).
var recordVerdictCmd = &cobra.Command{
	Use:   "record-verdict <feature> <role> <approved|rejected> [feedbackJSON]",
	Short: "Record a verdict on the latest iteration (coordinator only)",
	Long: `Records a review verdict against the phase's latest iteration.
Rejections require structured feedback: a JSON array of items, each with
severity, location, problem, and required_fix.

With dual sign-off enabled, each iteration needs an automated and a human
sub-verdict (--signoff) before the phase leaves SubmittedForReview; a single
rejecting sub-verdict rejects immediately.

Example:
  phasegate record-verdict tasks-001 spec rejected \
    '[{"severity":"critical","location":"file:120","problem":"missing case","required_fix":"add test X"}]'`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runRecordVerdict,
}

func init() {
	issueRequestCmd.Flags().StringVar(&payloadFile, "file", "", "Read payload from file (- for stdin)")
	submitIterationCmd.Flags().StringVar(&payloadFile, "file", "", "Read payload from file (- for stdin)")

	recordVerdictCmd.Flags().IntVar(&verdictIteration, "iteration", 0, "Iteration the verdict targets (default: latest)")
	recordVerdictCmd.Flags().StringVar(&verdictSignoff, "signoff", "", "Sub-verdict kind: automated or human (dual sign-off mode)")
	recordVerdictCmd.Flags().StringVar(&verdictReviewer, "reviewer", "", "Human reviewer recording the verdict")
	recordVerdictCmd.Flags().StringVar(&feedbackFile, "feedback-file", "", "Read feedback JSON from file (- for stdin)")

	rootCmd.AddCommand(issueRequestCmd)
	rootCmd.AddCommand(submitIterationCmd)
	rootCmd.AddCommand(recordVerdictCmd)
}

func runIssueRequest(cmd *cobra.Command, args []string) error {
	payload, err := payloadArg(args, 2)
	if err != nil {
		return err
	}

	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	doc, err := c.IssueRequest(types.FeatureID(args[0]), types.Role(args[1]), payload)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(doc)
	}
	fmt.Printf("Issued %s to %s/%s; phase is awaiting work\n", doc.Name(), args[0], args[1])
	return nil
}

func runSubmitIteration(cmd *cobra.Command, args []string) error {
	payload, err := payloadArg(args, 2)
	if err != nil {
		return err
	}

	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	doc, err := c.SubmitIteration(actor(), types.FeatureID(args[0]), types.Role(args[1]), payload)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(doc)
	}
	fmt.Printf("Submitted %s to %s/%s; phase is under review\n", doc.Name(), args[0], args[1])
	return nil
}

func runRecordVerdict(cmd *cobra.Command, args []string) error {
	outcome, err := parseOutcome(args[2])
	if err != nil {
		return err
	}

	var feedback []types.FeedbackItem
	raw := ""
	if len(args) == 4 {
		raw = args[3]
	}
	if feedbackFile != "" {
		raw, err = resolvePayload("", feedbackFile)
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &feedback); err != nil {
			return fmt.Errorf("failed to parse feedback JSON: %w", err)
		}
		for i := range feedback {
			feedback[i].Severity = types.Severity(strings.ToLower(string(feedback[i].Severity)))
		}
	}

	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	state, v, err := c.RecordVerdict(types.FeatureID(args[0]), types.Role(args[1]),
		verdictIteration, types.SignoffKind(verdictSignoff), outcome, feedback, verdictReviewer)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]any{"state": state, "verdict": v})
	}
	fmt.Printf("Recorded %s %s on iteration %02d; phase is %s\n", v.Signoff, v.Outcome, v.IterationSeq, state)
	return nil
}

// payloadArg resolves the optional positional payload together with --file.
func payloadArg(args []string, idx int) (string, error) {
	arg := ""
	if len(args) > idx {
		arg = args[idx]
	}
	if arg == "" && payloadFile == "" {
		return "", fmt.Errorf("payload required: pass it as an argument, via --file, or - for stdin")
	}
	return resolvePayload(arg, payloadFile)
}

func parseOutcome(s string) (types.VerdictOutcome, error) {
	switch strings.ToLower(s) {
	case "approved", "approve":
		return types.OutcomeApproved, nil
	case "rejected", "reject":
		return types.OutcomeRejected, nil
	}
	return "", fmt.Errorf("unknown outcome %q (want approved or rejected)", s)
}
