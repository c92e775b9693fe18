package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/teller-ledger/internal/banking"
	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/interest"
	jobstore "github.com/dvloznov/teller-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/teller-ledger/internal/repository"
	"github.com/dvloznov/teller-ledger/internal/repository/inmemory"
)

var clock = time.Date(2024, time.January, 10, 8, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	teller *teller
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := inmemory.NewStore(inmemory.WithIDGenerator(repository.NewSequentialAccountNumbers(1)))
	now := func() time.Time { return clock }
	svc := banking.NewService(store, banking.WithClock(now))
	h := &harness{t: t, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	h.teller = &teller{
		svc:    svc,
		sweep:  interest.NewScheduler(svc, jobstore.NewStore(1), interest.WithClock(now)),
		out:    h.out,
		errOut: h.errOut,
		now:    now,
	}
	return h
}

// run executes one command line and returns its output.
func (h *harness) run(line ...string) (string, error) {
	h.t.Helper()
	cmd, ok := lookup(line[0])
	if !ok {
		h.t.Fatalf("unknown command %q", line[0])
	}
	h.out.Reset()
	h.errOut.Reset()
	err := cmd.run(h.teller, context.Background(), line[1:])
	return h.out.String(), err
}

func (h *harness) mustRun(line ...string) string {
	h.t.Helper()
	out, err := h.run(line...)
	if err != nil {
		h.t.Fatalf("%s: unexpected error %v (stderr %q)", strings.Join(line, " "), err, h.errOut.String())
	}
	return out
}

var tellerFlags = []string{"-teller-id", "T-17", "-teller-first-name", "Nomsa", "-teller-surname", "Zulu", "-teller-branch", "DBN-03"}

func TestTellerSession(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("register", "-id", "8001015009087", "-first-name", "Thandi", "-surname", "Mokoena",
		"-dob", "1980-01-01", "-monthly-income", "25000", "-income-verified")
	if want := "Registered individual customer 8001015009087 (Thandi Mokoena)\n"; out != want {
		t.Errorf("register output = %q, want %q", out, want)
	}

	out = h.mustRun(append([]string{"open", "-customer", "8001015009087", "-type", "savings", "-deposit", "1000"}, tellerFlags...)...)
	if want := "Opened savings account 700000000001 at DBN-03 with balance 1000.00\n"; out != want {
		t.Errorf("open output = %q, want %q", out, want)
	}
	h.mustRun(append([]string{"open", "-customer", "8001015009087", "-type", "cheque", "-deposit", "200", "-branch", "JHB-01"}, tellerFlags...)...)

	out = h.mustRun("deposit", "-account", "700000000002", "-amount", "50.25")
	if want := "1002 700000000002 DEPOSIT 50.25 balance 250.25\n"; out != want {
		t.Errorf("deposit output = %q, want %q", out, want)
	}

	out = h.mustRun("transfer", "-from", "700000000002", "-to", "700000000001", "-amount", "100")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "WITHDRAWAL 100.00 balance 150.25") || !strings.Contains(lines[1], "DEPOSIT 100.00 balance 1100.00") {
		t.Errorf("transfer output = %q", out)
	}

	out = h.mustRun("balance", "-account", "700000000001")
	if want := "700000000001 SAVINGS 1100.00\n"; out != want {
		t.Errorf("balance output = %q, want %q", out, want)
	}

	out = h.mustRun("history", "-account", "700000000002")
	if got := strings.Count(out, "\n"); got != 4 {
		t.Errorf("history printed %d lines, want header and 3 entries:\n%s", got, out)
	}
	out = h.mustRun("history", "-account", "700000000002", "-limit", "1")
	if !strings.Contains(out, "WITHDRAWAL") || strings.Contains(out, "INITIAL_DEPOSIT") {
		t.Errorf("recent history = %q, want only the withdrawal", out)
	}

	out = h.mustRun("accounts", "-customer", "8001015009087")
	if !strings.Contains(out, "700000000001") || !strings.Contains(out, "JHB-01") {
		t.Errorf("accounts output = %q", out)
	}

	// 1100.00 * 0.0005 * 3 = 1.65
	out = h.mustRun("accrue", "-account", "700000000001", "-as-of", "2024-04-10")
	if want := "Applied 1.65 interest for 3 month(s) to 700000000001\n"; out != want {
		t.Errorf("accrue output = %q, want %q", out, want)
	}
	out = h.mustRun("accrue", "-account", "700000000001", "-as-of", "2024-04-20")
	if want := "No interest due on 700000000001\n"; out != want {
		t.Errorf("second accrue output = %q, want %q", out, want)
	}

	out = h.mustRun("verify", "-account", "700000000001")
	if !strings.Contains(out, "matches") {
		t.Errorf("verify output = %q", out)
	}
}

func TestTellerRejections(t *testing.T) {
	h := newHarness(t)
	h.mustRun("register", "-id", "8001015009087", "-first-name", "Thandi", "-surname", "Mokoena")
	h.mustRun(append([]string{"open", "-customer", "8001015009087", "-type", "savings", "-deposit", "100"}, tellerFlags...)...)

	tests := []struct {
		name string
		line []string
		want error
	}{
		{"missing flag", []string{"deposit", "-amount", "5"}, errUsage},
		{"unknown flag", []string{"balance", "-acct", "1"}, errUsage},
		{"bad amount", []string{"deposit", "-account", "700000000001", "-amount", "five"}, domain.ErrValidation},
		{"savings withdrawal", []string{"withdraw", "-account", "700000000001", "-amount", "5"}, domain.ErrUnsupportedOperation},
		{"unverified cheque", append([]string{"open", "-customer", "8001015009087", "-type", "cheque"}, tellerFlags...), domain.ErrIneligibleCustomer},
		{"investment below minimum", append([]string{"open", "-customer", "8001015009087", "-type", "investment", "-deposit", "499.99"}, tellerFlags...), domain.ErrValidation},
		{"unknown account", []string{"balance", "-account", "799999999999"}, domain.ErrNotFound},
		{"duplicate customer", []string{"register", "-id", "8001015009087", "-first-name", "A", "-surname", "B"}, domain.ErrValidation},
		{"unknown kind", []string{"register", "-id", "1", "-kind", "trust"}, errUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(tt.line...)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAccrueSweep(t *testing.T) {
	h := newHarness(t)
	h.mustRun("register", "-id", "8001015009087", "-first-name", "Thandi", "-surname", "Mokoena", "-income-verified")
	h.mustRun(append([]string{"open", "-customer", "8001015009087", "-type", "savings", "-deposit", "1000"}, tellerFlags...)...)
	h.mustRun(append([]string{"open", "-customer", "8001015009087", "-type", "cheque", "-deposit", "10"}, tellerFlags...)...)

	out := h.mustRun("accrue", "-as-of", "2024-03-10")
	if !strings.Contains(out, "completed: scanned 2, applied 1, skipped 1, failed 0") {
		t.Errorf("sweep output = %q", out)
	}
	out = h.mustRun("balance", "-account", "700000000001")
	if want := "700000000001 SAVINGS 1001.00\n"; out != want {
		t.Errorf("balance after sweep = %q, want %q", out, want)
	}
}

func TestUsageListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, c := range commands {
		if !strings.Contains(buf.String(), "  "+c.name+" ") {
			t.Errorf("usage does not mention %s", c.name)
		}
	}
}
