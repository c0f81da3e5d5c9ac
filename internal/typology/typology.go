// Package typology provides the transaction models that drive alert groups.
//
// Every model is active on an inclusive step window and is bound to exactly
// one alert, whose membership and SAR status it reads when emitting.
package typology

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"amlsim/internal/alert"
	"amlsim/internal/models"
)

// Typology names.
const (
	FanOut = "fan_out"
	FanIn  = "fan_in"
	Cycle  = "cycle"
)

// Typology errors.
var (
	ErrUnknownTypology = errors.New("unknown typology")
	ErrInvalidParams   = errors.New("invalid typology parameters")
	ErrNotBound        = errors.New("typology is not bound to an alert")
)

// Transferer settles transfers between accounts.
type Transferer interface {
	Transfer(step int64, from, to string, amount decimal.Decimal, alertID int64, isSAR bool, typology string) (*models.Transaction, error)
}

// Params configures a typology.
type Params struct {
	StartStep int64
	EndStep   int64
	MinAmount float64
	MaxAmount float64
	Seed      uint64
}

// Validate checks the step window and amount range.
func (p Params) Validate() error {
	if p.StartStep < 0 || p.EndStep < p.StartStep {
		return fmt.Errorf("%w: step window [%d, %d]", ErrInvalidParams, p.StartStep, p.EndStep)
	}
	if p.MinAmount <= 0 || p.MaxAmount < p.MinAmount {
		return fmt.Errorf("%w: amount range [%.2f, %.2f]", ErrInvalidParams, p.MinAmount, p.MaxAmount)
	}
	return nil
}

type constructor func(b *base) alert.Typology

var registry = map[string]constructor{
	FanOut: func(b *base) alert.Typology { return &fanOut{base: b} },
	FanIn:  func(b *base) alert.Typology { return &fanIn{base: b, sent: make(map[string]bool)} },
	Cycle:  func(b *base) alert.Typology { return &cycle{base: b} },
}

// New creates a typology by name.
func New(name string, p Params, ledger Transferer) (alert.Typology, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTypology, name)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ctor(newBase(name, p, ledger)), nil
}

// Names returns the registered typology names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Counter is implemented by typologies that count their settled transfers.
type Counter interface {
	Emissions() int
}

// base holds what all typologies share: window, amounts, ledger and alert.
type base struct {
	name      string
	params    Params
	ledger    Transferer
	alert     *alert.Alert
	amounts   distuv.Uniform
	emissions int
}

func newBase(name string, p Params, ledger Transferer) *base {
	return &base{
		name:   name,
		params: p,
		ledger: ledger,
		amounts: distuv.Uniform{
			Min: p.MinAmount,
			Max: p.MaxAmount,
			Src: rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15),
		},
	}
}

// Name returns the typology name.
func (b *base) Name() string {
	return b.name
}

// Bind attaches the typology to its alert once.
func (b *base) Bind(a *alert.Alert) error {
	if b.alert != nil {
		return alert.ErrTypologyBound
	}
	b.alert = a
	return nil
}

// IsValidStep reports whether step falls inside the active window.
func (b *base) IsValidStep(step int64) bool {
	return step >= b.params.StartStep && step <= b.params.EndStep
}

// Emissions returns the number of transfers settled so far.
func (b *base) Emissions() int {
	return b.emissions
}

// Alert returns the alert the typology is bound to.
func (b *base) Alert() *alert.Alert {
	return b.alert
}

// send settles one transfer labelled with the bound alert.
func (b *base) send(step int64, from, to alert.Member) error {
	if b.alert == nil {
		return ErrNotBound
	}

	amount := decimal.NewFromFloat(b.amounts.Rand())
	_, err := b.ledger.Transfer(step, from.AccountID(), to.AccountID(), amount, b.alert.ID(), b.alert.IsSAR(), b.name)
	if err != nil {
		return err
	}
	b.emissions++
	return nil
}
