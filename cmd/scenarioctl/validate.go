package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/validation"
)

type validateOptions struct {
	format       string
	maxDepth     int
	repair       bool
	repairRounds int
}

// validationResult отчёт команды validate.
type validationResult struct {
	ScenarioID string                        `json:"scenario_id" yaml:"scenario_id"`
	Nodes      int                           `json:"nodes" yaml:"nodes"`
	Defects    []validation.Defect           `json:"defects" yaml:"defects"`
	Counts     map[validation.DefectKind]int `json:"counts,omitempty" yaml:"counts,omitempty"`
	Repairs    []validation.Report           `json:"repairs,omitempty" yaml:"repairs,omitempty"`
	Remaining  []validation.Defect           `json:"remaining,omitempty" yaml:"remaining,omitempty"`
}

func newValidateCmd() *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a stored scenario tree for structural defects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remaining, err := runValidate(cmd.OutOrStdout(), args[0], opts, zap.NewNop())
			if err != nil {
				return err
			}
			if remaining > 0 {
				return fmt.Errorf("%d defects remain", remaining)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "report format: text or yaml")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 3, "maximum depth the tree was built with")
	cmd.Flags().BoolVar(&opts.repair, "repair", false, "repair defects and write the tree back")
	cmd.Flags().IntVar(&opts.repairRounds, "repair-rounds", 3, "maximum validate-repair rounds")
	return cmd
}

// runValidate возвращает число дефектов, оставшихся после проверки (и починки, если она включена).
func runValidate(w io.Writer, path string, opts validateOptions, log *zap.Logger) (int, error) {
	if opts.format != "text" && opts.format != "yaml" {
		return 0, fmt.Errorf("unknown format %q", opts.format)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var tree model.ScenarioTree
	if err := json.Unmarshal(data, &tree); err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	defects := validation.Validate(&tree, opts.maxDepth)
	result := validationResult{
		ScenarioID: tree.ID,
		Nodes:      len(tree.Nodes),
		Defects:    defects,
		Counts:     validation.CountByKind(defects),
	}
	remaining := defects

	if opts.repair && len(defects) > 0 {
		repairer := validation.NewRepairer(opts.maxDepth, log)
		for round := 0; round < opts.repairRounds && len(remaining) > 0; round++ {
			result.Repairs = append(result.Repairs, repairer.Repair(&tree, remaining))
			remaining = validation.Validate(&tree, opts.maxDepth)
		}
		result.Remaining = remaining
		if err := writeTree(path, &tree); err != nil {
			return 0, err
		}
	}

	if err := printResult(w, result, opts.format); err != nil {
		return 0, err
	}
	return len(remaining), nil
}

func printResult(w io.Writer, r validationResult, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(w, "scenario %s: %d nodes, %d defects\n", r.ScenarioID, r.Nodes, len(r.Defects))
	for _, d := range r.Defects {
		fmt.Fprintf(w, "  %-16s %-10s %s\n", d.Kind, d.NodeID, d.Message)
	}
	for i, rep := range r.Repairs {
		fmt.Fprintf(w, "repair round %d: added %d, removed %d, reclassified %d, skipped %d\n",
			i+1, len(rep.AddedNodes), len(rep.RemovedNodes), len(rep.Reclassified), rep.Skipped)
	}
	if len(r.Repairs) > 0 {
		fmt.Fprintf(w, "remaining defects: %d\n", len(r.Remaining))
	}
	return nil
}

// writeTree пишет дерево через временный файл, чтобы не оставить обрезанный JSON.
func writeTree(path string, tree *model.ScenarioTree) error {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".scenario-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
