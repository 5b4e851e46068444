package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"calculator-console/internal/calcclient"
	"calculator-console/internal/calculator"
)

func (a *app) batchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <op>:<numbers>...",
		Short: "Evaluate several operations in one request",
		Long: `Send several operations to the service's batch endpoint. Each argument
is an operation keyword or name followed by a colon and comma-separated
numbers. Batch results are not recorded in the history.

Examples:
  calcctl batch sum:1,2,3 div:10,4
  calcctl batch multiply:2,3 subtract:10,1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args)
		},
	}
}

// parseBatchItem parses "sum:1,2,3".
func parseBatchItem(arg string) (calcclient.BatchItem, error) {
	name, numbers, ok := strings.Cut(arg, ":")
	if !ok {
		return calcclient.BatchItem{}, fmt.Errorf("invalid batch item %q: expected <op>:<numbers>", arg)
	}

	op, err := calculator.ParseOperation(name)
	if err != nil {
		return calcclient.BatchItem{}, fmt.Errorf("invalid batch item %q: %w", arg, err)
	}

	nums := calculator.ParseNumbers(numbers)
	if len(nums) == 0 {
		return calcclient.BatchItem{}, fmt.Errorf("invalid batch item %q: %w", arg, calculator.ErrNoNumbers)
	}

	return calcclient.BatchItem{Op: string(op), Nums: nums}, nil
}

func (a *app) runBatch(cmd *cobra.Command, args []string) error {
	items := make([]calcclient.BatchItem, 0, len(args))
	for _, arg := range args {
		item, err := parseBatchItem(arg)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	results, err := a.client.Batch(cmd.Context(), items)
	if err != nil {
		a.printer.Error("%s", calculator.OperationMessage(err))
		return errReported
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	if a.jsonOut {
		if err := a.printer.JSON(results); err != nil {
			return err
		}
	} else if err := a.printBatch(items, results); err != nil {
		return err
	}

	if failed > 0 {
		return errReported
	}
	return nil
}

func (a *app) printBatch(items []calcclient.BatchItem, results []calcclient.BatchResult) error {
	table := a.printer.Table([]string{"#", "OPERATION", "EXPRESSION"})

	for i, r := range results {
		op := calculator.Operation(r.Op)
		var nums []float64
		if i < len(items) {
			nums = items[i].Nums
		}

		row := ""
		switch {
		case r.Error != "":
			row = a.printer.Failed("error: " + r.Error)
		case r.Result != nil:
			row = a.printer.Bold(calculator.FormatExpression(calculator.HistoryEntry{
				Numbers:   nums,
				Operation: op,
				Result:    *r.Result,
			}))
		}

		table.AddRow(fmt.Sprint(i+1), op.Name(), row)
	}

	return table.Render()
}
