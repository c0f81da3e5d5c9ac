package typology

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"amlsim/internal/account"
	"amlsim/internal/alert"
	"amlsim/internal/ledger"
)

type fixture struct {
	ledger   *ledger.Ledger
	alert    *alert.Alert
	model    alert.Typology
	accounts []*account.Account
}

func newFixture(t *testing.T, name string, members int, subject int, p Params) *fixture {
	t.Helper()

	l := ledger.New()
	model, err := New(name, p, l)
	if err != nil {
		t.Fatalf("New(%s) error = %v", name, err)
	}
	al, err := alert.New(1, model, nil)
	if err != nil {
		t.Fatalf("alert.New() error = %v", err)
	}

	f := &fixture{ledger: l, alert: al, model: model}
	for i := 0; i < members; i++ {
		acct := account.New(fmt.Sprintf("A%d", i), "bank")
		if err := l.Open(acct.AccountID(), decimal.NewFromInt(10000)); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if err := al.AddMember(acct); err != nil {
			t.Fatalf("AddMember() error = %v", err)
		}
		f.accounts = append(f.accounts, acct)
	}
	if subject >= 0 {
		if err := al.SetSubjectAccount(f.accounts[subject]); err != nil {
			t.Fatalf("SetSubjectAccount() error = %v", err)
		}
	}
	return f
}

// run drives every account through steps [0, steps) the way the engine does.
func (f *fixture) run(t *testing.T, steps int64) {
	t.Helper()
	for step := int64(0); step < steps; step++ {
		for _, acct := range f.accounts {
			if err := acct.HandleStep(step); err != nil {
				t.Fatalf("HandleStep(%d) error = %v", step, err)
			}
		}
	}
}

func defaultParams() Params {
	return Params{StartStep: 1, EndStep: 10, MinAmount: 100, MaxAmount: 200, Seed: 7}
}

func TestFanOut(t *testing.T) {
	f := newFixture(t, FanOut, 4, 2, defaultParams())
	f.run(t, 20)

	txs := f.ledger.Transactions()
	if len(txs) != 3 {
		t.Fatalf("fan-out settled %d transfers, want 3", len(txs))
	}
	for _, tx := range txs {
		if tx.OrigID != "A2" {
			t.Errorf("fan-out originator = %s, want subject A2", tx.OrigID)
		}
		if !tx.IsSAR || tx.AlertID != 1 || tx.Typology != FanOut {
			t.Errorf("transaction not labelled with its alert: %+v", tx)
		}
		if tx.Step < 1 || tx.Step > 10 {
			t.Errorf("transfer at step %d outside the active window", tx.Step)
		}
		if tx.Amount.LessThan(decimal.NewFromInt(100)) || tx.Amount.GreaterThan(decimal.NewFromInt(200)) {
			t.Errorf("amount %s outside [100, 200]", tx.Amount)
		}
	}
	if got := f.model.(Counter).Emissions(); got != 3 {
		t.Errorf("Emissions() = %d, want 3", got)
	}
}

func TestFanInFalseAlertUsesFirstMember(t *testing.T) {
	f := newFixture(t, FanIn, 3, -1, defaultParams())
	f.run(t, 20)

	txs := f.ledger.Transactions()
	if len(txs) != 2 {
		t.Fatalf("fan-in settled %d transfers, want 2", len(txs))
	}
	for _, tx := range txs {
		if tx.BeneID != "A0" {
			t.Errorf("fan-in beneficiary = %s, want primary A0", tx.BeneID)
		}
		if tx.IsSAR {
			t.Errorf("false alert transfer labelled SAR")
		}
	}
}

func TestCycleReturnsFunds(t *testing.T) {
	p := Params{StartStep: 0, EndStep: 2, MinAmount: 50, MaxAmount: 50, Seed: 1}
	f := newFixture(t, Cycle, 3, 0, p)
	f.run(t, 5)

	txs := f.ledger.Transactions()
	want := [][2]string{{"A0", "A1"}, {"A1", "A2"}, {"A2", "A0"}}
	if len(txs) != len(want) {
		t.Fatalf("cycle settled %d transfers, want %d", len(txs), len(want))
	}
	for i, tx := range txs {
		if tx.OrigID != want[i][0] || tx.BeneID != want[i][1] {
			t.Errorf("transfer %d = %s -> %s, want %s -> %s", i, tx.OrigID, tx.BeneID, want[i][0], want[i][1])
		}
	}
	for _, acct := range f.accounts {
		bal, _ := f.ledger.Balance(acct.AccountID())
		if !bal.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("%s balance = %s after a full cycle", acct.AccountID(), bal)
		}
	}
}

func TestEmitPropagatesInsufficientFunds(t *testing.T) {
	p := Params{StartStep: 0, EndStep: 0, MinAmount: 50000, MaxAmount: 50000}
	f := newFixture(t, FanOut, 2, 0, p)

	err := f.accounts[0].HandleStep(0)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("HandleStep() error = %v, want ErrInsufficientFunds", err)
	}
}

func TestBindOnce(t *testing.T) {
	model, err := New(Cycle, defaultParams(), ledger.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := alert.New(1, model, nil); err != nil {
		t.Fatalf("alert.New() error = %v", err)
	}
	if _, err := alert.New(2, model, nil); !errors.Is(err, alert.ErrTypologyBound) {
		t.Fatalf("rebinding error = %v, want ErrTypologyBound", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("smurfing", defaultParams(), ledger.New()); !errors.Is(err, ErrUnknownTypology) {
		t.Errorf("unknown name error = %v", err)
	}

	bad := []Params{
		{StartStep: 5, EndStep: 4, MinAmount: 1, MaxAmount: 2},
		{StartStep: -1, EndStep: 4, MinAmount: 1, MaxAmount: 2},
		{StartStep: 0, EndStep: 4, MinAmount: 0, MaxAmount: 2},
		{StartStep: 0, EndStep: 4, MinAmount: 3, MaxAmount: 2},
	}
	for _, p := range bad {
		if _, err := New(FanIn, p, ledger.New()); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("New(%+v) error = %v, want ErrInvalidParams", p, err)
		}
	}

	if got := Names(); len(got) != 3 || got[0] != Cycle {
		t.Errorf("Names() = %v", got)
	}
}

func TestUnboundEmit(t *testing.T) {
	model, _ := New(FanOut, defaultParams(), ledger.New())
	if err := model.Emit(1, account.New("A", "bank")); !errors.Is(err, ErrNotBound) {
		t.Errorf("Emit() on unbound typology error = %v, want ErrNotBound", err)
	}
}
