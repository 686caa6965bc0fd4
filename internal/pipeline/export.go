package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportCartToXLSX writes the cart, the savings analysis, the delivery
// schedule and the plan of a run to one workbook.
func ExportCartToXLSX(res Result, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), "Cart"); err != nil {
		return err
	}
	for _, name := range []string{"Savings", "Delivery", "Plan"} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	cartRows := [][]any{{
		"line", "category", "item", "source", "quantity", "unit_price", "line_total",
		"rating", "delivery_days", "score", "why_selected", "alternates",
	}}
	for i, line := range res.Cart.Lines {
		alts := make([]string, 0, len(line.Alternates))
		for _, a := range line.Alternates {
			alts = append(alts, fmt.Sprintf("%s (%s, $%.2f)", a.Name, a.SourceID, a.Price))
		}
		cartRows = append(cartRows, []any{
			i + 1, line.Item.Category, line.Item.Name, line.Item.SourceID, line.Quantity,
			line.Item.Price, line.Cost(), line.Item.Rating, line.Item.DeliveryDays, line.Item.Score,
			strings.Join(line.Decision.WhySelected, "; "), strings.Join(alts, "; "),
		})
	}
	cartRows = append(cartRows, []any{"", "", "TOTAL", "", "", "", res.Cart.TotalCost})

	s := res.Savings
	savingsRows := [][]any{
		{"metric", "value"},
		{"goal", res.Goal},
		{"mode", string(res.Mode)},
		{"max_budget", res.Cart.MaxBudget},
		{"total_cost", res.Cart.TotalCost},
		{"budget_remaining", res.Cart.BudgetRemaining},
		{"budget_utilization_pct", res.Cart.BudgetUtilizationPct},
		{"random_shopping_cost", s.RandomShoppingCost},
		{"single_source_cost", s.SingleSourceCost},
		{"optimized_cost", s.AIOptimizedCost},
		{"money_saved", s.MoneySaved},
		{"percent_saved", s.PercentSaved},
		{"delivery_days_saved", s.DeliveryDaysSaved},
		{"quality_score_gain", s.QualityScoreGain},
		{"candidates_scanned", res.Metrics.CandidatesScanned},
		{"sources_analyzed", res.Metrics.SourcesAnalyzed},
		{"delivery_score", res.Metrics.DeliveryScore},
	}

	deliveryRows := [][]any{{"source", "items", "estimated_date", "cost"}}
	for _, d := range res.Cart.DeliverySchedule {
		deliveryRows = append(deliveryRows, []any{d.SourceID, d.LineCount, d.EstimatedDate, d.Cost})
	}

	planRows := [][]any{{"category", "display_name", "priority", "estimated_quantity", "budget_allocation"}}
	for _, c := range res.Plan.Categories {
		planRows = append(planRows, []any{c.Name, c.DisplayName, string(c.Priority), c.EstimatedQuantity, c.BudgetAllocation})
	}

	for sheet, rows := range map[string][][]any{
		"Cart":     cartRows,
		"Savings":  savingsRows,
		"Delivery": deliveryRows,
		"Plan":     planRows,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
