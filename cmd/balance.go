package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"trypie/ledger"
)

func balanceCommand() *cobra.Command {
	var inputPath, outputPath, viewer string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Settle a trip from a CSV file",
		Long: `Read expenses from a CSV file with the columns title,amount,payer,members[,shares]
and print what every member owes, is owed, and the transfers that settle the trip.
members and shares are comma separated lists; an empty shares column splits equally.`,
		Example: `trypie balance --input trip.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(inputPath)
			if err != nil {
				return err
			}
			defer in.Close()

			r := csv.NewReader(in)
			// the shares column is optional per row
			r.FieldsPerRecord = -1
			rows, err := r.ReadAll()
			if err != nil {
				return fmt.Errorf("read %s: %w", inputPath, err)
			}
			expenses, err := ParseCSVToExpenses(rows)
			if err != nil {
				return fmt.Errorf("failed to parse CSV: %w", err)
			}
			if len(expenses) == 0 {
				return fmt.Errorf("no expenses found in %s", inputPath)
			}

			var out io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := writeBalances(out, expenses); err != nil {
				return err
			}
			if viewer != "" {
				return writeViewerBalances(out, expenses, ledger.UserID(viewer))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "csv input file path (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default stdout)")
	cmd.Flags().StringVarP(&viewer, "user", "u", "", "also print the direct balances of this member")

	return cmd
}

func splitList(field string) []string {
	if strings.TrimSpace(field) == "" {
		return nil
	}
	parts := strings.Split(field, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseCSVToExpenses turns CSV rows, header first, into expenses with unpaid shares.
func ParseCSVToExpenses(rows [][]string) ([]ledger.Expense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV is empty")
	}

	expenses := make([]ledger.Expense, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != 4 && len(row) != 5 {
			return nil, fmt.Errorf("row %d: expected 4 or 5 columns, but got %d", line, len(row))
		}

		amount, err := ledger.ParseAmount(row[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		payer := ledger.UserID(strings.TrimSpace(row[2]))
		if payer == "" {
			return nil, fmt.Errorf("row %d: payer is empty", line)
		}
		members := splitList(row[3])
		if len(members) == 0 {
			return nil, fmt.Errorf("row %d: no members", line)
		}

		var shares []ledger.ShareRequest
		var amounts []string
		if len(row) == 5 {
			amounts = splitList(row[4])
		}
		if len(amounts) == 0 {
			ids := make([]ledger.UserID, len(members))
			for j, m := range members {
				ids[j] = ledger.UserID(m)
			}
			shares, err = ledger.EqualSplit(amount, ids)
		} else {
			if len(amounts) != len(members) {
				return nil, fmt.Errorf("row %d: %d members but %d shares", line, len(members), len(amounts))
			}
			entries := make([]ledger.CustomEntry, len(members))
			for j, m := range members {
				entries[j] = ledger.CustomEntry{UserID: ledger.UserID(m), Amount: amounts[j]}
			}
			shares, err = ledger.CustomSplit(amount, entries)
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		category, title := ledger.SplitLegacyTitle(strings.TrimSpace(row[0]))
		expense := ledger.Expense{
			ID:       uuid.New(),
			Title:    title,
			Category: category,
			Amount:   amount,
			Currency: ledger.DefaultCurrency,
			PaidBy:   payer,
		}
		for _, s := range shares {
			expense.Shares = append(expense.Shares, ledger.Share{ID: uuid.New(), UserID: s.UserID, Amount: s.Amount})
		}
		expenses = append(expenses, expense)
	}
	return expenses, nil
}

// participants lists payers and share holders in order of first appearance.
func participants(expenses []ledger.Expense) []ledger.UserID {
	seen := map[ledger.UserID]bool{}
	var users []ledger.UserID
	add := func(u ledger.UserID) {
		if !seen[u] {
			seen[u] = true
			users = append(users, u)
		}
	}
	for _, e := range expenses {
		add(e.PaidBy)
		for _, s := range e.Shares {
			add(s.UserID)
		}
	}
	return users
}

func writeBalances(w io.Writer, expenses []ledger.Expense) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "member\towes\tis owed")
	for _, user := range participants(expenses) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", user,
			ledger.TotalOwedBy(expenses, user).StringFixed(2),
			ledger.TotalOwedTo(expenses, user).StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	transfers := ledger.SettlementPlan(expenses)
	if len(transfers) == 0 {
		_, err := fmt.Fprintln(w, "\nall settled up")
		return err
	}
	fmt.Fprintln(w, "\ntransfers:")
	for _, t := range transfers {
		if _, err := fmt.Fprintf(w, "%s -> %s: %s\n", t.From, t.To, t.Amount.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

// writeViewerBalances prints the pairwise balance between viewer and every other member.
func writeViewerBalances(w io.Writer, expenses []ledger.Expense, viewer ledger.UserID) error {
	if _, err := fmt.Fprintf(w, "\nbalances of %s:\n", viewer); err != nil {
		return err
	}
	for _, user := range participants(expenses) {
		if user == viewer {
			continue
		}
		label, amount := ledger.BalanceLabel(ledger.NetBalance(expenses, viewer, user))
		var err error
		switch label {
		case ledger.LabelOwesYou:
			_, err = fmt.Fprintf(w, "%s %s %s\n", user, label, amount.StringFixed(2))
		case ledger.LabelYouOwe:
			_, err = fmt.Fprintf(w, "%s %s %s\n", label, user, amount.StringFixed(2))
		default:
			_, err = fmt.Fprintf(w, "%s: %s\n", user, label)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
