package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/teller-ledger/internal/banking"
	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/jobs"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

const dateLayout = "2006-01-02"

// errUsage marks bad command-line input; the message has already been printed.
var errUsage = errors.New("usage error")

// sweeper runs an interest sweep across every account.
type sweeper interface {
	RunOnce(ctx context.Context, asOf time.Time) (*jobs.InterestRun, error)
}

// teller runs subcommands against one service and prints results to out.
type teller struct {
	svc    *banking.Service
	sweep  sweeper
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

type command struct {
	name    string
	summary string
	mutates bool
	run     func(t *teller, ctx context.Context, args []string) error
}

var commands = []command{
	{"register", "Register an individual or organization customer", true, (*teller).register},
	{"open", "Open an account for a registered customer", true, (*teller).open},
	{"deposit", "Deposit cash into an account", true, (*teller).deposit},
	{"withdraw", "Withdraw cash from an account", true, (*teller).withdraw},
	{"transfer", "Move money between two accounts", true, (*teller).transfer},
	{"balance", "Show an account balance", false, (*teller).balance},
	{"history", "Show an account's transactions", false, (*teller).history},
	{"accounts", "List accounts, optionally for one customer", false, (*teller).accounts},
	{"accrue", "Apply due interest to one account or all accounts", true, (*teller).accrue},
	{"verify", "Check an account balance against its ledger", false, (*teller).verify},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Teller Ledger CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  cli <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "  help      Show this help message")
	fmt.Fprintln(w, "\nRun 'cli <command> -h' for more information on a command.")
}

func (t *teller) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(t.errOut)
	return fs
}

func (t *teller) parse(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	for _, name := range required {
		if fs.Lookup(name).Value.String() == "" {
			fmt.Fprintf(t.errOut, "Error: -%s is required\n", name)
			fs.Usage()
			return errUsage
		}
	}
	return nil
}

func (t *teller) register(ctx context.Context, args []string) error {
	fs := t.flagSet("register")
	var (
		kind     = fs.String("kind", "individual", "Customer kind: individual or organization")
		id       = fs.String("id", "", "Identification or company registration number")
		address  = fs.String("address", "", "Postal address")
		email    = fs.String("email", "", "Email address")
		phone    = fs.String("phone", "", "Phone number")
		first    = fs.String("first-name", "", "First name (individual)")
		surname  = fs.String("surname", "", "Surname (individual)")
		dob      = fs.String("dob", "", "Date of birth, YYYY-MM-DD (individual)")
		source   = fs.String("income-source", "", "Source of income (individual)")
		employer = fs.String("employer", "", "Employer name (individual)")
		income   = fs.String("monthly-income", "0", "Monthly income (individual)")
		verified = fs.Bool("income-verified", false, "Income has been verified (individual)")
		company  = fs.String("company", "", "Company name (organization)")
		business = fs.String("business-type", "", "Business type (organization)")
		contact  = fs.String("contact", "", "Contact person (organization)")
		revenue  = fs.String("annual-revenue", "0", "Annual revenue (organization)")
	)
	if err := t.parse(fs, args, "id"); err != nil {
		return err
	}

	var (
		customer *domain.Customer
		err      error
	)
	switch strings.ToLower(*kind) {
	case "individual":
		profile := domain.IndividualProfile{
			FirstName:      *first,
			Surname:        *surname,
			Income:         domain.IncomeSource{Source: *source, EmployerName: *employer},
			IncomeVerified: *verified,
		}
		if profile.Income.MonthlyIncome, err = domain.ParseMoney(*income); err != nil {
			return err
		}
		if *dob != "" {
			if profile.DateOfBirth, err = time.Parse(dateLayout, *dob); err != nil {
				return fmt.Errorf("invalid -dob %q: %w", *dob, err)
			}
		}
		customer, err = domain.NewIndividual(*id, profile, t.now())
	case "organization":
		profile := domain.OrganizationProfile{
			CompanyName:        *company,
			RegistrationNumber: *id,
			BusinessType:       *business,
			ContactPerson:      *contact,
		}
		if profile.AnnualRevenue, err = domain.ParseMoney(*revenue); err != nil {
			return err
		}
		customer, err = domain.NewOrganization(*id, profile, t.now())
	default:
		fmt.Fprintf(t.errOut, "Error: unknown -kind %q\n", *kind)
		return errUsage
	}
	if err != nil {
		return err
	}
	customer.Address, customer.Email, customer.Phone = *address, *email, *phone

	registered, err := t.svc.RegisterCustomer(ctx, customer)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Registered %s customer %s (%s)\n", strings.ToLower(string(registered.Kind)), registered.ID, registered.DisplayName())
	return nil
}

func (t *teller) open(ctx context.Context, args []string) error {
	fs := t.flagSet("open")
	var (
		customer = fs.String("customer", "", "Customer identification number")
		kind     = fs.String("type", "", "Account type: savings, cheque or investment")
		deposit  = fs.String("deposit", "0", "Initial deposit")
		branch   = fs.String("branch", "", "Branch code (defaults to the teller's branch)")
		tellerID = fs.String("teller-id", os.Getenv("TELLER_ID"), "Teller staff number (or set TELLER_ID env)")
		first    = fs.String("teller-first-name", os.Getenv("TELLER_FIRST_NAME"), "Teller first name (or set TELLER_FIRST_NAME env)")
		surname  = fs.String("teller-surname", os.Getenv("TELLER_SURNAME"), "Teller surname (or set TELLER_SURNAME env)")
		home     = fs.String("teller-branch", os.Getenv("TELLER_BRANCH"), "Teller home branch (or set TELLER_BRANCH env)")
	)
	if err := t.parse(fs, args, "customer", "type"); err != nil {
		return err
	}
	accountKind, err := domain.ParseAccountKind(*kind)
	if err != nil {
		return err
	}
	amount, err := domain.ParseMoney(*deposit)
	if err != nil {
		return err
	}

	account, err := t.svc.OpenAccount(ctx, banking.OpenAccountRequest{
		Teller:         banking.Teller{ID: *tellerID, FirstName: *first, Surname: *surname, Branch: *home},
		CustomerID:     *customer,
		Kind:           accountKind,
		Branch:         *branch,
		InitialDeposit: amount,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Opened %s account %s at %s with balance %s\n",
		strings.ToLower(string(account.Kind())), account.Number(), account.Branch(), account.Balance().StringFixed(2))
	return nil
}

func (t *teller) deposit(ctx context.Context, args []string) error {
	return t.post(ctx, "deposit", args, t.svc.Deposit)
}

func (t *teller) withdraw(ctx context.Context, args []string) error {
	return t.post(ctx, "withdraw", args, t.svc.Withdraw)
}

func (t *teller) post(ctx context.Context, name string, args []string, fn func(context.Context, string, decimal.Decimal, string) (domain.Transaction, error)) error {
	fs := t.flagSet(name)
	var (
		account     = fs.String("account", "", "Account number")
		amount      = fs.String("amount", "", "Amount")
		description = fs.String("description", "", "Ledger description")
	)
	if err := t.parse(fs, args, "account", "amount"); err != nil {
		return err
	}
	value, err := domain.ParseMoney(*amount)
	if err != nil {
		return err
	}
	tx, err := fn(ctx, *account, value, *description)
	if err != nil {
		return err
	}
	t.printEntry(tx)
	return nil
}

func (t *teller) transfer(ctx context.Context, args []string) error {
	fs := t.flagSet("transfer")
	var (
		from        = fs.String("from", "", "Source account number")
		to          = fs.String("to", "", "Destination account number")
		amount      = fs.String("amount", "", "Amount")
		description = fs.String("description", "", "Ledger description for both entries")
	)
	if err := t.parse(fs, args, "from", "to", "amount"); err != nil {
		return err
	}
	value, err := domain.ParseMoney(*amount)
	if err != nil {
		return err
	}
	res, err := t.svc.Transfer(ctx, banking.TransferRequest{From: *from, To: *to, Amount: value, Description: *description})
	if err != nil {
		return err
	}
	t.printEntry(res.Withdrawal)
	t.printEntry(res.Deposit)
	return nil
}

func (t *teller) printEntry(tx domain.Transaction) {
	fmt.Fprintf(t.out, "%d %s %s %s balance %s\n", tx.ID, tx.AccountNumber, tx.Kind, tx.Amount.StringFixed(2), tx.BalanceAfter.StringFixed(2))
}

func (t *teller) balance(ctx context.Context, args []string) error {
	fs := t.flagSet("balance")
	account := fs.String("account", "", "Account number")
	if err := t.parse(fs, args, "account"); err != nil {
		return err
	}
	b, err := t.svc.GetBalance(ctx, *account)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "%s %s %s\n", b.AccountNumber, b.Kind, b.Amount.StringFixed(2))
	return nil
}

func (t *teller) history(ctx context.Context, args []string) error {
	fs := t.flagSet("history")
	var (
		account = fs.String("account", "", "Account number")
		limit   = fs.Int("limit", 0, "Show only the most recent entries")
		since   = fs.String("since", "", "Earliest date, YYYY-MM-DD")
		until   = fs.String("until", "", "Latest date, YYYY-MM-DD (inclusive)")
	)
	if err := t.parse(fs, args, "account"); err != nil {
		return err
	}

	filter := repository.TransactionFilter{Limit: *limit}
	if *since != "" {
		d, err := time.Parse(dateLayout, *since)
		if err != nil {
			return fmt.Errorf("invalid -since %q: %w", *since, err)
		}
		filter.Since = d
	}
	if *until != "" {
		d, err := time.Parse(dateLayout, *until)
		if err != nil {
			return fmt.Errorf("invalid -until %q: %w", *until, err)
		}
		filter.Until = d.Add(24*time.Hour - time.Nanosecond)
	}

	var (
		txs []domain.Transaction
		err error
	)
	if *limit > 0 && filter.Since.IsZero() && filter.Until.IsZero() {
		txs, err = t.svc.GetRecentTransactions(ctx, *account, *limit)
	} else {
		txs, err = t.svc.GetTransactions(ctx, *account, filter)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tAMOUNT\tBALANCE\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.CreatedAt.Format(dateLayout), tx.Kind, tx.Amount.StringFixed(2), tx.BalanceAfter.StringFixed(2), tx.Description)
	}
	return w.Flush()
}

func (t *teller) accounts(ctx context.Context, args []string) error {
	fs := t.flagSet("accounts")
	var (
		customer = fs.String("customer", "", "Only this customer's accounts")
		limit    = fs.Int("limit", 0, "Only the most recently opened accounts")
	)
	if err := t.parse(fs, args); err != nil {
		return err
	}

	var (
		list []*domain.Account
		err  error
	)
	if *customer != "" {
		list, err = t.svc.GetCustomerAccounts(ctx, *customer)
	} else {
		list, err = t.svc.ListAccounts(ctx, *limit)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tTYPE\tCUSTOMER\tBRANCH\tBALANCE\tOPENED")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Number(), a.Kind(), a.CustomerID(), a.Branch(), a.Balance().StringFixed(2), a.OpenedAt().Format(dateLayout))
	}
	return w.Flush()
}

func (t *teller) accrue(ctx context.Context, args []string) error {
	fs := t.flagSet("accrue")
	var (
		account = fs.String("account", "", "Account number (all accounts when empty)")
		asOfArg = fs.String("as-of", "", "Accrual date, YYYY-MM-DD (defaults to now)")
	)
	if err := t.parse(fs, args); err != nil {
		return err
	}
	asOf := t.now()
	if *asOfArg != "" {
		d, err := time.Parse(dateLayout, *asOfArg)
		if err != nil {
			return fmt.Errorf("invalid -as-of %q: %w", *asOfArg, err)
		}
		asOf = d
	}

	if *account == "" {
		run, err := t.sweep.RunOnce(ctx, asOf)
		if run != nil {
			fmt.Fprintf(t.out, "Run %s %s: scanned %d, applied %d, skipped %d, failed %d\n",
				run.JobID, run.Status, run.Scanned, run.Applied, run.Skipped, len(run.Failures))
			for _, f := range run.Failures {
				fmt.Fprintf(t.out, "  %s: %s\n", f.AccountNumber, f.Error)
			}
		}
		return err
	}

	res, err := t.svc.ApplyInterest(ctx, *account, asOf)
	if err != nil {
		return err
	}
	if !res.Applied {
		fmt.Fprintf(t.out, "No interest due on %s\n", *account)
		return nil
	}
	fmt.Fprintf(t.out, "Applied %s interest for %d month(s) to %s\n", res.Amount.StringFixed(2), res.Months, *account)
	return nil
}

func (t *teller) verify(ctx context.Context, args []string) error {
	fs := t.flagSet("verify")
	account := fs.String("account", "", "Account number")
	if err := t.parse(fs, args, "account"); err != nil {
		return err
	}
	if err := t.svc.VerifyAccount(ctx, *account); err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Ledger of %s matches its balance\n", *account)
	return nil
}
