// Package report renders a group's expenses as an xlsx workbook.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"trypie/ledger"
)

const (
	ExpenseSheet = "Expenses"
	ShareSheet   = "Shares"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	expenseHeaders = []string{"Date", "Title", "Category", "Paid by", "Amount", "Currency"}
	shareHeaders   = []string{"Expense", "Member", "Amount", "Currency", "Paid"}
)

type styles struct {
	header  int
	data    int
	summary int
}

var border = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	}); err != nil {
		return s, err
	}
	if s.data, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "center"},
		Border:    border,
	}); err != nil {
		return s, err
	}
	s.summary, err = f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 11},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		Border: border,
	})
	return s, err
}

// WriteExpenses writes one row per expense and one row per share. names maps user ids to
// display names; unknown ids are written as is.
func WriteExpenses(w io.Writer, expenses []ledger.Expense, names map[ledger.UserID]string) error {
	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f)
	if err != nil {
		return fmt.Errorf("create styles: %w", err)
	}
	if err := f.SetSheetName("Sheet1", ExpenseSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(ShareSheet); err != nil {
		return err
	}

	name := func(u ledger.UserID) string {
		if n, ok := names[u]; ok && n != "" {
			return n
		}
		return string(u)
	}

	if err := writeRow(f, ExpenseSheet, 1, st.header, toAny(expenseHeaders)...); err != nil {
		return err
	}
	if err := writeRow(f, ShareSheet, 1, st.header, toAny(shareHeaders)...); err != nil {
		return err
	}

	shareRow := 2
	for i, e := range expenses {
		err := writeRow(f, ExpenseSheet, i+2, st.data,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Title,
			e.Category.String(),
			name(e.PaidBy),
			e.Amount.InexactFloat64(),
			e.Currency,
		)
		if err != nil {
			return err
		}
		for _, s := range e.Shares {
			paid := "no"
			if s.IsPaid {
				paid = "yes"
			}
			if err := writeRow(f, ShareSheet, shareRow, st.data, e.Title, name(s.UserID), s.Amount.InexactFloat64(), e.Currency, paid); err != nil {
				return err
			}
			shareRow++
		}
	}

	summary := fmt.Sprintf("%d expenses", len(expenses))
	if err := writeRow(f, ExpenseSheet, len(expenses)+2, st.summary, "Total", summary); err != nil {
		return err
	}

	widths := map[string]float64{"A": 20, "B": 30, "C": 12, "D": 15, "E": 12, "F": 10}
	for col, width := range widths {
		if err := f.SetColWidth(ExpenseSheet, col, col, width); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(ShareSheet, "A", "B", 25); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row, style int, values ...any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(values), row)
	return f.SetCellStyle(sheet, first, last, style)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
