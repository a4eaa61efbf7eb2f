package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/auth"
	biddingapp "solar-portal/internal/bidding/application"
	biddingpg "solar-portal/internal/bidding/infrastructure/postgres"
	billingapp "solar-portal/internal/billing/application"
	billing "solar-portal/internal/billing/domain"
	billingpg "solar-portal/internal/billing/infrastructure/postgres"
	"solar-portal/internal/billing/infrastructure/pricing"
	"solar-portal/internal/billing/interfaces"
	"solar-portal/internal/notify"
	"solar-portal/internal/platform/database"
	"solar-portal/internal/platform/migrations"
)

type options struct {
	dbURL      string
	job        string
	month      string
	rate       string
	creditRate string
	dueDay     int
	reportPath string
	timeout    time.Duration
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	db, err := database.Open(ctx, opts.dbURL, database.Options{MaxOpenConns: 4})
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		fmt.Fprintln(os.Stderr, "migrations:", err)
		os.Exit(2)
	}

	var result any
	switch opts.job {
	case "sweep":
		svc, err := biddingapp.NewService(biddingpg.NewStore(db), notify.NewLoggingNotifier(log), log)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bidding service:", err)
			os.Exit(2)
		}
		result, err = svc.SweepExpiredSessions(ctx, time.Now().UTC())
		if err != nil {
			fmt.Fprintln(os.Stderr, "sweep:", err)
			os.Exit(1)
		}
	case "monthly", "overdue", "report":
		result, err = runBilling(ctx, opts, billingpg.NewStore(db), log)
		if err != nil {
			fmt.Fprintln(os.Stderr, opts.job+":", err)
			os.Exit(1)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func runBilling(ctx context.Context, opts options, store billing.Store, log logrus.FieldLogger) (any, error) {
	rate, err := optionalDecimal(opts.rate)
	if err != nil {
		return nil, err
	}
	credit, err := optionalDecimal(opts.creditRate)
	if err != nil {
		return nil, err
	}
	rates, err := pricing.NewFixedRateProvider(decimal.Zero, decimal.Zero)
	if err != nil {
		return nil, err
	}
	svc, err := billingapp.NewService(store, log, billingapp.WithRateProvider(rates), billingapp.WithDueDay(opts.dueDay))
	if err != nil {
		return nil, err
	}

	if opts.job == "overdue" {
		n, err := svc.MarkOverdueInvoices(ctx, time.Now().UTC())
		return map[string]int64{"marked_overdue": n}, err
	}
	period, err := resolvePeriod(opts.month, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if opts.job == "report" {
		invoices, err := svc.MonthlyReport(ctx, auth.System(), period)
		if err != nil {
			return nil, err
		}
		if opts.reportPath != "" {
			data, err := interfaces.BuildMonthlyReportXLSX(period, invoices)
			if err != nil {
				return nil, err
			}
			if err := os.WriteFile(opts.reportPath, data, 0o644); err != nil {
				return nil, err
			}
		}
		return invoices, nil
	}
	return svc.GenerateMonthlyBills(ctx, period, billing.RateOverride{RatePerKWh: rate, CreditRatePerKWh: credit})
}

// resolvePeriod parses "2006-01"; empty means the month before now.
func resolvePeriod(value string, now time.Time) (billing.Period, error) {
	if value == "" {
		return billing.PeriodOf(now).Previous(), nil
	}
	return billing.ParsePeriod(value)
}

func optionalDecimal(value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", value, err)
	}
	return &d, nil
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("billing", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.dbURL, "db", os.Getenv("DATABASE_URL"), "postgres dsn")
	fs.StringVar(&opts.job, "job", "monthly", "sweep | monthly | overdue | report")
	fs.StringVar(&opts.month, "month", "", "billing month YYYY-MM (default: previous month)")
	fs.StringVar(&opts.rate, "rate", "", "rate per kWh override")
	fs.StringVar(&opts.creditRate, "credit-rate", "", "credit rate per kWh override")
	fs.IntVar(&opts.dueDay, "due-day", 15, "invoice due day of the following month")
	fs.StringVar(&opts.reportPath, "xlsx", "", "write the monthly report workbook here (job=report)")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.dbURL == "" {
		return opts, errors.New("db is required (-db or DATABASE_URL)")
	}
	switch opts.job {
	case "sweep", "monthly", "overdue", "report":
	default:
		return opts, fmt.Errorf("unknown job %q", opts.job)
	}
	return opts, nil
}
