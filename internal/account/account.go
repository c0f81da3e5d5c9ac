// Package account provides simulated bank accounts and their alert memberships.
package account

import (
	"fmt"

	"amlsim/internal/alert"
)

// Account is a participant that may belong to several alert groups.
// Balances live in the ledger; an Account only tracks identity and membership.
type Account struct {
	id     string
	bankID string
	alerts []*alert.Alert
}

// New creates an account.
func New(id, bankID string) *Account {
	return &Account{
		id:     id,
		bankID: bankID,
		alerts: make([]*alert.Alert, 0),
	}
}

// AccountID returns the account identifier.
func (a *Account) AccountID() string {
	return a.id
}

// BankID returns the identifier of the bank holding the account.
func (a *Account) BankID() string {
	return a.bankID
}

// RecordMembership links the account to an alert. Recording the same alert
// twice keeps a single link.
func (a *Account) RecordMembership(al *alert.Alert) {
	for _, existing := range a.alerts {
		if existing == al {
			return
		}
	}
	a.alerts = append(a.alerts, al)
}

// Alerts returns the alerts the account belongs to, in join order.
func (a *Account) Alerts() []*alert.Alert {
	alerts := make([]*alert.Alert, len(a.alerts))
	copy(alerts, a.alerts)
	return alerts
}

// HandleStep triggers every alert the account belongs to for step.
// It stops at the first error.
func (a *Account) HandleStep(step int64) error {
	for _, al := range a.alerts {
		if err := al.TriggerStep(step, a); err != nil {
			return fmt.Errorf("account %s alert %d step %d: %w", a.id, al.ID(), step, err)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (a *Account) String() string {
	return a.id
}
