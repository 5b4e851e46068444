package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"calculator-console/internal/calculator"
)

type historyFlags struct {
	operation string
	date      string
	sortBy    string
	sortOrder string
}

func (a *app) historyCmd() *cobra.Command {
	var f historyFlags

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Show calculation history",
		Long: `Show at most the 20 history records the service returns for the
given filters.

Examples:
  calcctl history
  calcctl history --operation mult --date 2024-01-01
  calcctl history --sort-by result --sort-order asc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.operation, "operation", "all", "sum, rest, div, mult, or all")
	cmd.Flags().StringVar(&f.date, "date", "", "only records from this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.sortBy, "sort-by", "date", "date or result")
	cmd.Flags().StringVar(&f.sortOrder, "sort-order", "desc", "asc or desc")

	return cmd
}

func (f historyFlags) filters() (calculator.Filters, error) {
	op, err := calculator.ParseOperationFilter(f.operation)
	if err != nil {
		return calculator.Filters{}, fmt.Errorf("--operation: %w", err)
	}
	date, err := calculator.ParseDateFilter(f.date)
	if err != nil {
		return calculator.Filters{}, fmt.Errorf("--date: %w", err)
	}
	key, err := calculator.ParseSortKey(f.sortBy)
	if err != nil {
		return calculator.Filters{}, fmt.Errorf("--sort-by: %w", err)
	}
	order, err := calculator.ParseSortOrder(f.sortOrder)
	if err != nil {
		return calculator.Filters{}, fmt.Errorf("--sort-order: %w", err)
	}
	return calculator.Filters{Operation: op, Date: date, SortBy: key, SortOrder: order}, nil
}

func (a *app) runHistory(cmd *cobra.Command, f historyFlags) error {
	filters, err := f.filters()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	session := calculator.NewSession(a.client)

	// ApplyFilters only fetches when the selection differs from the
	// session's defaults.
	if filters == session.Filters() {
		err = session.FetchHistory(ctx)
	} else {
		err = session.ApplyFilters(ctx, filters)
	}
	view := session.View()

	if a.jsonOut {
		if jerr := a.printer.JSON(view.History); jerr != nil {
			return jerr
		}
		if err != nil {
			a.printer.Error("%s", view.Error)
			return errReported
		}
		return nil
	}

	if err != nil {
		a.printer.Error("%s", view.Error)
		return errReported
	}

	a.printer.Info("%s", describeFilters(filters))
	return a.printHistory(view.History)
}

func describeFilters(f calculator.Filters) string {
	parts := []string{"operation: " + f.Operation.Name()}
	if f.Date != "" {
		parts = append(parts, "date: "+f.Date)
	}
	parts = append(parts, fmt.Sprintf("sorted by %s, %s", f.SortBy, f.SortOrder))
	return strings.Join(parts, " | ")
}
