package typology

import (
	"amlsim/internal/alert"
)

// fanOut: the primary account sends to each other member in turn, one
// transfer per active step.
type fanOut struct {
	*base
	next int
}

func (f *fanOut) Emit(step int64, acct alert.Member) error {
	if f.alert == nil {
		return ErrNotBound
	}

	primary, ok := f.alert.PrimarySubject()
	if !ok || acct != primary {
		return nil
	}

	beneficiaries := others(f.alert.Members(), primary)
	if f.next >= len(beneficiaries) {
		return nil
	}

	if err := f.send(step, primary, beneficiaries[f.next]); err != nil {
		return err
	}
	f.next++
	return nil
}

// fanIn: every other member sends once to the primary account.
type fanIn struct {
	*base
	sent map[string]bool
}

func (f *fanIn) Emit(step int64, acct alert.Member) error {
	if f.alert == nil {
		return ErrNotBound
	}

	primary, ok := f.alert.PrimarySubject()
	if !ok || acct == primary || f.sent[acct.AccountID()] || !f.alert.HasMember(acct) {
		return nil
	}

	if err := f.send(step, acct, primary); err != nil {
		return err
	}
	f.sent[acct.AccountID()] = true
	return nil
}

// cycle: at window offset k, member k mod n pays member k+1 mod n, so funds
// travel round the group and return to where they started.
type cycle struct {
	*base
}

func (c *cycle) Emit(step int64, acct alert.Member) error {
	if c.alert == nil {
		return ErrNotBound
	}

	members := c.alert.Members()
	n := int64(len(members))
	if n < 2 || !c.IsValidStep(step) {
		return nil
	}

	k := (step - c.params.StartStep) % n
	if members[k] != acct {
		return nil
	}

	return c.send(step, members[k], members[(k+1)%n])
}

func others(members []alert.Member, exclude alert.Member) []alert.Member {
	out := make([]alert.Member, 0, len(members))
	for _, m := range members {
		if m != exclude {
			out = append(out, m)
		}
	}
	return out
}
