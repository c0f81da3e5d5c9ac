// Package alert provides alert groups: sets of accounts bound to one
// typology model that decides, step by step, when the group transacts.
package alert

import (
	"errors"
	"fmt"
)

// Alert errors.
var (
	ErrNilTypology       = errors.New("typology model is nil")
	ErrTypologyBound     = errors.New("typology model is already bound to an alert")
	ErrNilMember         = errors.New("member is nil")
	ErrSubjectNotMember  = errors.New("subject account is not a member of the alert")
	ErrSubjectAlreadySet = errors.New("subject account is already set")
)

// Member is an account that can take part in alert groups.
type Member interface {
	AccountID() string
	// RecordMembership links the member back to an alert it joined.
	RecordMembership(a *Alert)
}

// Typology is a behavioral model that generates the transactions of one alert.
type Typology interface {
	// Name returns the typology name, e.g. "fan_out".
	Name() string
	// Bind attaches the model to its alert. It must succeed at most once.
	Bind(a *Alert) error
	// IsValidStep reports whether the typology is active at step. It has no side effects.
	IsValidStep(step int64) bool
	// Emit performs the typology's transactions for acct at step.
	Emit(step int64, acct Member) error
}

// Simulation is the engine that owns alerts and advances the step counter.
type Simulation interface {
	CurrentStep() int64
}

// Alert is a group of accounts whose transactions are driven by one typology.
// The group is SAR when a subject account is set; otherwise it is a false alert.
type Alert struct {
	id      int64
	members []Member
	subject Member
	model   Typology
	sim     Simulation
}

// New creates an alert and binds model to it. A model serves exactly one alert.
func New(id int64, model Typology, sim Simulation) (*Alert, error) {
	if model == nil {
		return nil, fmt.Errorf("alert %d: %w", id, ErrNilTypology)
	}

	a := &Alert{
		id:      id,
		members: make([]Member, 0),
		model:   model,
		sim:     sim,
	}

	if err := model.Bind(a); err != nil {
		return nil, fmt.Errorf("alert %d: binding %s: %w", id, model.Name(), err)
	}

	return a, nil
}

// TriggerStep asks the typology whether step is active and, if so, lets it
// emit transactions for acct. Emission errors are returned unchanged.
func (a *Alert) TriggerStep(step int64, acct Member) error {
	if a.model == nil {
		panic(fmt.Sprintf("alert %d: TriggerStep called before a typology was bound", a.id))
	}

	if !a.model.IsValidStep(step) {
		return nil
	}

	return a.model.Emit(step, acct)
}

// AddMember appends acct to the group and records the membership on acct.
func (a *Alert) AddMember(acct Member) error {
	if acct == nil {
		return ErrNilMember
	}

	a.members = append(a.members, acct)
	acct.RecordMembership(a)

	return nil
}

// SetSubjectAccount marks acct as the suspicious actor of the group.
// The subject must already be a member and can be set only once.
func (a *Alert) SetSubjectAccount(acct Member) error {
	if acct == nil {
		return ErrNilMember
	}

	if a.subject != nil {
		return fmt.Errorf("alert %d: %w (%s)", a.id, ErrSubjectAlreadySet, a.subject.AccountID())
	}

	if !a.HasMember(acct) {
		return fmt.Errorf("alert %d: %w (%s)", a.id, ErrSubjectNotMember, acct.AccountID())
	}

	a.subject = acct

	return nil
}

// IsSAR reports whether the alert has a subject account.
func (a *Alert) IsSAR() bool {
	return a.subject != nil
}

// Subject returns the subject account, if any.
func (a *Alert) Subject() (Member, bool) {
	return a.subject, a.subject != nil
}

// PrimarySubject returns one representative account for the group: the
// subject for SAR alerts, otherwise the first member to join. It returns
// false for an empty false alert.
func (a *Alert) PrimarySubject() (Member, bool) {
	if a.IsSAR() {
		return a.subject, true
	}

	if len(a.members) == 0 {
		return nil, false
	}

	return a.members[0], true
}

// HasMember reports whether acct belongs to the group.
func (a *Alert) HasMember(acct Member) bool {
	for _, m := range a.members {
		if m == acct {
			return true
		}
	}

	return false
}

// Members returns the members in the order they joined.
func (a *Alert) Members() []Member {
	members := make([]Member, len(a.members))
	copy(members, a.members)

	return members
}

// ID returns the alert identifier.
func (a *Alert) ID() int64 {
	return a.id
}

// Model returns the bound typology.
func (a *Alert) Model() Typology {
	return a.model
}

// Simulation returns the engine the alert belongs to.
func (a *Alert) Simulation() Simulation {
	return a.sim
}
