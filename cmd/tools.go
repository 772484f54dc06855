package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"coopledger/config"
	"coopledger/database"
	"coopledger/events"
	"coopledger/models"
	"coopledger/repository"

	"github.com/shopspring/decimal"
)

// Amortize prints the schedule for the loan terms given in args without
// touching the database
func Amortize(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("amortize", flag.ContinueOnError)
	fs.SetOutput(out)
	principal := fs.String("principal", "", "loan principal, e.g. 12000.00")
	rate := fs.String("rate", "", "annual interest rate in percent, e.g. 12")
	term := fs.Int("term", 0, "term in months")
	start := fs.String("start", time.Now().UTC().Format(time.DateOnly), "disbursement date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := decimal.NewFromString(*principal)
	if err != nil {
		return fmt.Errorf("invalid principal %q: %w", *principal, err)
	}
	r, err := decimal.NewFromString(*rate)
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", *rate, err)
	}
	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", *start, err)
	}

	svcs, err := NewServices(config.Get(), nil)
	if err != nil {
		return err
	}
	rows, summary, err := svcs.Loans.PreviewSchedule(p, r, *term, startDate)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tDue\tBeginning\tPayment\tPrincipal\tInterest\tEnding\t")
	for _, row := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			row.Sequence,
			row.DueDate.Format(time.DateOnly),
			row.BeginningBalance.StringFixed(2),
			row.AmortizationAmount.StringFixed(2),
			row.PrincipalPortion.StringFixed(2),
			row.InterestPortion.StringFixed(2),
			row.EndingBalance.StringFixed(2),
		)
	}
	fmt.Fprintf(tw, "\tTotal\t\t%s\t%s\t%s\t\t\n",
		summary.TotalPayments.StringFixed(2),
		summary.TotalPrincipal.StringFixed(2),
		summary.TotalInterest.StringFixed(2),
	)
	return tw.Flush()
}

// Reconcile compares the stored balance of each account with its ledger
// history. It fails when any account is out of balance.
func Reconcile(ctx context.Context, accountNumbers []string, out io.Writer) error {
	if len(accountNumbers) == 0 {
		return errors.New("usage: coopledger reconcile ACCOUNT_NUMBER...")
	}

	cfg := config.Get()
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	svcs, err := NewServices(cfg, repository.NewUnitOfWorkFactory(db, events.NewBus()))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Account\tStored\tLedger\tPostings\tStatus")

	unbalanced := 0
	for _, accountNumber := range accountNumbers {
		report, err := svcs.Ledger.Reconcile(ctx, accountNumber)
		if err != nil {
			tw.Flush()
			return fmt.Errorf("failed to reconcile %s: %w", accountNumber, err)
		}

		status := "ok"
		if !report.Balanced {
			status = "MISMATCH"
			unbalanced++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			report.AccountNumber,
			report.StoredBalance.StringFixed(2),
			report.LedgerBalance.StringFixed(2),
			report.TransactionCount,
			status,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if unbalanced > 0 {
		return fmt.Errorf("%d of %d accounts out of balance", unbalanced, len(accountNumbers))
	}
	return nil
}

const tiersUsage = "usage: coopledger tiers list PRODUCT | tiers load PRODUCT FILE.csv"

// Tiers lists or replaces a product's interest rate table. A loaded file
// replaces the whole table; rows are term_months,threshold_amount,rate_percent.
func Tiers(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errors.New(tiersUsage)
	}
	action, product := args[0], models.Product(args[1])

	var tiers []*models.InterestRateTier
	switch action {
	case "list":
	case "load":
		if len(args) < 3 {
			return errors.New(tiersUsage)
		}
		f, err := os.Open(args[2])
		if err != nil {
			return fmt.Errorf("failed to open rate table: %w", err)
		}
		defer f.Close()

		tiers, err = ParseTierTable(f)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown tiers command: %s", action)
	}

	cfg := config.Get()
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	svcs, err := NewServices(cfg, repository.NewUnitOfWorkFactory(db, events.NewBus()))
	if err != nil {
		return err
	}

	if action == "load" {
		if err := svcs.RateTiers.ReplaceTiers(ctx, product, tiers); err != nil {
			return err
		}
	}

	current, err := svcs.RateTiers.ListTiers(ctx, product)
	if err != nil {
		return err
	}
	return printTiers(out, current)
}

// ParseTierTable reads rate tiers from CSV in file order. A leading header
// row is skipped; blank lines are ignored.
func ParseTierTable(r io.Reader) ([]*models.InterestRateTier, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read rate table: %w", err)
	}
	if len(records) > 0 && strings.EqualFold(strings.TrimSpace(records[0][0]), "term_months") {
		records = records[1:]
	}

	tiers := make([]*models.InterestRateTier, 0, len(records))
	for i, record := range records {
		term, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid term %q", i+1, record[0])
		}
		threshold, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid threshold %q", i+1, record[1])
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid rate %q", i+1, record[2])
		}
		tiers = append(tiers, &models.InterestRateTier{
			TermMonths:      term,
			ThresholdAmount: threshold,
			RatePercent:     rate,
		})
	}
	return tiers, nil
}

func printTiers(out io.Writer, tiers []*models.InterestRateTier) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Term\tThreshold\tRate %")
	for _, tier := range tiers {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", tier.TermMonths, tier.ThresholdAmount.StringFixed(2), tier.RatePercent.String())
	}
	return tw.Flush()
}
