package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"phasegate/internal/types"
)

var handoffFile string

// openHandoffCmd publishes an interface from one role's workspace to another.
var openHandoffCmd = &cobra.Command{
	Use:   "open-handoff <feature> <srcRole> <iteration> <dstRole> [interface]",
	Short: "Grant a role read access to an upstream interface (coordinator only)",
	Long: `Writes a handoff document into the source workspace, derived from the
named source iteration, and grants the target role read access to it. The
source phase does not need to be approved; handoffs are how downstream work
starts early.

Example:
  phasegate open-handoff tasks-001 spec 1 build '{"signature": "Add(a, b int) int"}'`,
	Args: cobra.RangeArgs(4, 5),
	RunE: runOpenHandoff,
}

// reviseHandoffCmd re-points an existing handoff at a newer iteration.
var reviseHandoffCmd = &cobra.Command{
	Use:   "revise-handoff <feature> <srcRole> <handoffSeq> <newIteration> [changes]",
	Short: "Re-point a handoff at a newer source iteration (coordinator only)",
	Long: `Appends a new handoff document and moves the target's grant to it.
The superseded handoff stays readable as history, and the target gains a
one-time authorization to receive a fresh request for the revised interface.`,
	Args: cobra.RangeArgs(4, 5),
	RunE: runReviseHandoff,
}

func init() {
	openHandoffCmd.Flags().StringVar(&handoffFile, "file", "", "Read interface payload from file (- for stdin)")
	reviseHandoffCmd.Flags().StringVar(&handoffFile, "file", "", "Read changes payload from file (- for stdin)")

	rootCmd.AddCommand(openHandoffCmd)
	rootCmd.AddCommand(reviseHandoffCmd)
}

func runOpenHandoff(cmd *cobra.Command, args []string) error {
	iter, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("iteration must be a number: %w", err)
	}
	arg := ""
	if len(args) == 5 {
		arg = args[4]
	}
	payload, err := resolvePayload(arg, handoffFile)
	if err != nil {
		return err
	}
	if payload == "" {
		return fmt.Errorf("interface payload required: pass it as an argument, via --file, or - for stdin")
	}

	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	doc, err := c.OpenHandoff(types.FeatureID(args[0]), types.Role(args[1]), iter, types.Role(args[3]), payload)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(doc)
	}
	fmt.Printf("Opened %s from %s/%s iteration %02d; %s may now read it\n",
		doc.Name(), args[0], args[1], iter, args[3])
	return nil
}

func runReviseHandoff(cmd *cobra.Command, args []string) error {
	prevSeq, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("handoff sequence must be a number: %w", err)
	}
	newIter, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("iteration must be a number: %w", err)
	}
	arg := ""
	if len(args) == 5 {
		arg = args[4]
	}
	payload, err := resolvePayload(arg, handoffFile)
	if err != nil {
		return err
	}

	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()

	doc, err := c.ReviseHandoff(types.FeatureID(args[0]), types.Role(args[1]), prevSeq, newIter, payload)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(doc)
	}
	fmt.Printf("Revised handoff: %s now points at iteration %02d of %s/%s\n",
		doc.Name(), newIter, args[0], args[1])
	return nil
}
