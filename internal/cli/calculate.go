package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"calculator-console/internal/calculator"
)

func (a *app) calculateCmd(op calculator.Operation) *cobra.Command {
	return &cobra.Command{
		Use:     string(op) + " <numbers>...",
		Aliases: []string{op.Name()},
		Short:   fmt.Sprintf("Apply %s (%s) to the given numbers", op.Name(), calculator.SymbolFor(op)),
		Long: fmt.Sprintf(`Send the numbers to the calculator service, print the result and the
refreshed history. Numbers may be comma-separated, space-separated, or both;
tokens that are not numbers are ignored.

Examples:
  calcctl %[1]s 2,4,5
  calcctl %[1]s 2 4 5`, op),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCalculate(cmd, op, args)
		},
	}
}

func (a *app) runCalculate(cmd *cobra.Command, op calculator.Operation, args []string) error {
	session := calculator.NewSession(a.client)
	session.SetInput(strings.Join(args, ","))

	err := session.PerformOperation(cmd.Context(), op)
	view := session.View()

	if a.jsonOut {
		if jerr := a.printer.JSON(view); jerr != nil {
			return jerr
		}
		if err != nil {
			return errReported
		}
		return nil
	}

	if err != nil || view.Result == nil {
		a.printer.Error("%s", view.Error)
		return errReported
	}

	a.printer.Result("Result: %s", calculator.FormatNumber(*view.Result))
	if view.Error != "" {
		// The operation succeeded but the history refresh did not.
		a.printer.Warning("%s", view.Error)
		return nil
	}

	return a.printHistory(view.History)
}

func (a *app) printHistory(entries []calculator.HistoryEntry) error {
	a.printer.Header("History")

	if len(entries) == 0 {
		a.printer.Info("No history available.")
		return nil
	}

	table := a.printer.Table([]string{"#", "OPERATION", "EXPRESSION", "DATE"})
	for i, e := range entries {
		table.AddRow(
			strconv.Itoa(i+1),
			e.Operation.Name(),
			a.printer.Bold(calculator.FormatExpression(e)),
			a.printer.Dim(calculator.FormatTimestamp(e, a.loc)),
		)
	}
	return table.Render()
}
