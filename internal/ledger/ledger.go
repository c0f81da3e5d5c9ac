// Package ledger keeps account balances and the transaction log of a simulation.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"amlsim/internal/models"
)

// Ledger errors.
var (
	ErrAccountExists     = errors.New("account already exists")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSelfTransfer      = errors.New("originator and beneficiary are the same account")
)

// amountPlaces is the number of decimal places amounts are rounded to.
const amountPlaces = 2

// TransferError describes a transfer the ledger refused.
type TransferError struct {
	Step   int64
	From   string
	To     string
	Amount decimal.Decimal
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s -> %s of %s at step %d: %v", e.From, e.To, e.Amount.StringFixed(amountPlaces), e.Step, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Ledger holds balances by account id. All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	txs      []models.Transaction
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[string]decimal.Decimal),
		txs:      make([]models.Transaction, 0),
	}
}

// Open registers an account with an initial balance.
func (l *Ledger) Open(accountID string, initial decimal.Decimal) error {
	if initial.IsNegative() {
		return fmt.Errorf("open %s: initial balance %s: %w", accountID, initial, ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[accountID]; ok {
		return fmt.Errorf("open %s: %w", accountID, ErrAccountExists)
	}
	l.balances[accountID] = initial.Round(amountPlaces)
	return nil
}

// Balance returns the current balance of an account.
func (l *Ledger) Balance(accountID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[accountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("balance %s: %w", accountID, ErrAccountNotFound)
	}
	return bal, nil
}

// Transfer moves amount from one account to another and logs the transaction.
func (l *Ledger) Transfer(step int64, from, to string, amount decimal.Decimal, alertID int64, isSAR bool, typology string) (*models.Transaction, error) {
	amount = amount.Round(amountPlaces)
	fail := func(err error) (*models.Transaction, error) {
		return nil, &TransferError{Step: step, From: from, To: to, Amount: amount, Err: err}
	}

	if !amount.IsPositive() {
		return fail(ErrInvalidAmount)
	}
	if from == to {
		return fail(ErrSelfTransfer)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, ok := l.balances[from]
	if !ok {
		return fail(fmt.Errorf("originator %s: %w", from, ErrAccountNotFound))
	}
	toBal, ok := l.balances[to]
	if !ok {
		return fail(fmt.Errorf("beneficiary %s: %w", to, ErrAccountNotFound))
	}
	if fromBal.LessThan(amount) {
		return fail(ErrInsufficientFunds)
	}

	l.balances[from] = fromBal.Sub(amount)
	l.balances[to] = toBal.Add(amount)

	tx := models.Transaction{
		ID:       uuid.NewString(),
		Step:     step,
		OrigID:   from,
		BeneID:   to,
		Amount:   amount,
		AlertID:  alertID,
		IsSAR:    isSAR,
		Typology: typology,
	}
	l.txs = append(l.txs, tx)

	return &tx, nil
}

// Transactions returns a copy of the transaction log in settlement order.
func (l *Ledger) Transactions() []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	txs := make([]models.Transaction, len(l.txs))
	copy(txs, l.txs)
	return txs
}

// Len returns the number of settled transactions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}

// Total returns the sum of all balances.
func (l *Ledger) Total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	for _, bal := range l.balances {
		total = total.Add(bal)
	}
	return total
}
