package alert

import (
	"errors"
	"testing"
)

// stubMember records the alerts it was linked to.
type stubMember struct {
	id     string
	alerts []*Alert
}

func (m *stubMember) AccountID() string { return m.id }

func (m *stubMember) RecordMembership(a *Alert) { m.alerts = append(m.alerts, a) }

// stubTypology is active on [start, end] and counts emissions per step.
type stubTypology struct {
	start, end int64
	bound      *Alert
	emitted    map[int64]int
	emitErr    error
}

func newStubTypology(start, end int64) *stubTypology {
	return &stubTypology{start: start, end: end, emitted: make(map[int64]int)}
}

func (s *stubTypology) Name() string { return "stub" }

func (s *stubTypology) Bind(a *Alert) error {
	if s.bound != nil {
		return ErrTypologyBound
	}
	s.bound = a
	return nil
}

func (s *stubTypology) IsValidStep(step int64) bool { return step >= s.start && step <= s.end }

func (s *stubTypology) Emit(step int64, _ Member) error {
	s.emitted[step]++
	return s.emitErr
}

func (s *stubTypology) total() int {
	n := 0
	for _, c := range s.emitted {
		n += c
	}
	return n
}

func TestNewBindsModel(t *testing.T) {
	model := newStubTypology(0, 10)
	a, err := New(7, model, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if model.bound != a {
		t.Errorf("model not bound to the new alert")
	}
	if a.ID() != 7 {
		t.Errorf("ID() = %d, want 7", a.ID())
	}
	if a.Model() != model {
		t.Errorf("Model() returned a different typology")
	}
}

func TestNewRejectsSharedModel(t *testing.T) {
	model := newStubTypology(0, 10)
	if _, err := New(1, model, nil); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err := New(2, model, nil)
	if !errors.Is(err, ErrTypologyBound) {
		t.Fatalf("second New() error = %v, want ErrTypologyBound", err)
	}
}

func TestNewRejectsNilModel(t *testing.T) {
	if _, err := New(1, nil, nil); !errors.Is(err, ErrNilTypology) {
		t.Fatalf("New(nil) error = %v, want ErrNilTypology", err)
	}
}

func TestPrimarySubject(t *testing.T) {
	a, _ := New(1, newStubTypology(0, 0), nil)

	if m, ok := a.PrimarySubject(); ok || m != nil {
		t.Fatalf("empty alert PrimarySubject() = %v, %v; want nil, false", m, ok)
	}

	accA := &stubMember{id: "A"}
	accB := &stubMember{id: "B"}
	accC := &stubMember{id: "C"}
	for _, m := range []*stubMember{accA, accB, accC} {
		if err := a.AddMember(m); err != nil {
			t.Fatalf("AddMember() error = %v", err)
		}
	}

	if m, ok := a.PrimarySubject(); !ok || m != accA {
		t.Errorf("false alert PrimarySubject() = %v, want A", m)
	}
	if a.IsSAR() {
		t.Errorf("IsSAR() = true before a subject was set")
	}

	if err := a.SetSubjectAccount(accC); err != nil {
		t.Fatalf("SetSubjectAccount() error = %v", err)
	}
	if m, ok := a.PrimarySubject(); !ok || m != accC {
		t.Errorf("SAR PrimarySubject() = %v, want C", m)
	}
	if !a.IsSAR() {
		t.Errorf("IsSAR() = false after the subject was set")
	}
}

func TestSetSubjectAccountPolicy(t *testing.T) {
	a, _ := New(1, newStubTypology(0, 0), nil)
	member := &stubMember{id: "A"}
	outsider := &stubMember{id: "X"}
	_ = a.AddMember(member)

	if err := a.SetSubjectAccount(outsider); !errors.Is(err, ErrSubjectNotMember) {
		t.Errorf("SetSubjectAccount(outsider) error = %v, want ErrSubjectNotMember", err)
	}
	if a.IsSAR() {
		t.Errorf("rejected subject changed the classification")
	}

	if err := a.SetSubjectAccount(member); err != nil {
		t.Fatalf("SetSubjectAccount() error = %v", err)
	}
	if err := a.SetSubjectAccount(member); !errors.Is(err, ErrSubjectAlreadySet) {
		t.Errorf("second SetSubjectAccount() error = %v, want ErrSubjectAlreadySet", err)
	}
	if err := a.SetSubjectAccount(nil); !errors.Is(err, ErrNilMember) {
		t.Errorf("SetSubjectAccount(nil) error = %v, want ErrNilMember", err)
	}
}

func TestAddMemberRecordsBackLink(t *testing.T) {
	a, _ := New(3, newStubTypology(0, 0), nil)
	x := &stubMember{id: "X"}

	if err := a.AddMember(x); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	if len(x.alerts) != 1 || x.alerts[0] != a {
		t.Fatalf("member alerts = %v, want [alert 3]", x.alerts)
	}
	if !a.HasMember(x) {
		t.Errorf("HasMember() = false after AddMember")
	}
	if err := a.AddMember(nil); !errors.Is(err, ErrNilMember) {
		t.Errorf("AddMember(nil) error = %v, want ErrNilMember", err)
	}
}

func TestMembersReturnsCopy(t *testing.T) {
	a, _ := New(1, newStubTypology(0, 0), nil)
	_ = a.AddMember(&stubMember{id: "A"})

	members := a.Members()
	members[0] = &stubMember{id: "Z"}

	if a.Members()[0].AccountID() != "A" {
		t.Errorf("Members() exposed internal storage")
	}
}

func TestTriggerStep(t *testing.T) {
	model := newStubTypology(2, 4)
	a, _ := New(1, model, nil)
	acct := &stubMember{id: "A"}

	for step := int64(0); step < 8; step++ {
		if err := a.TriggerStep(step, acct); err != nil {
			t.Fatalf("TriggerStep(%d) error = %v", step, err)
		}
	}

	for step := int64(0); step < 8; step++ {
		want := 0
		if step >= 2 && step <= 4 {
			want = 1
		}
		if got := model.emitted[step]; got != want {
			t.Errorf("step %d: emitted %d times, want %d", step, got, want)
		}
	}
}

func TestTriggerStepPropagatesEmitError(t *testing.T) {
	boom := errors.New("insufficient funds")
	model := newStubTypology(0, 0)
	model.emitErr = boom
	a, _ := New(1, model, nil)

	if err := a.TriggerStep(0, &stubMember{id: "A"}); err != boom {
		t.Fatalf("TriggerStep() error = %v, want the model error unchanged", err)
	}
	if err := a.TriggerStep(1, &stubMember{id: "A"}); err != nil {
		t.Fatalf("inactive TriggerStep() error = %v, want nil", err)
	}
}

func TestTriggerStepWithoutModelPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("TriggerStep on a zero Alert did not panic")
		}
	}()

	var a Alert
	_ = a.TriggerStep(0, &stubMember{id: "A"})
}

type fixedSimulation int64

func (s fixedSimulation) CurrentStep() int64 { return int64(s) }

func TestSimulationBackReference(t *testing.T) {
	a, _ := New(1, newStubTypology(0, 0), fixedSimulation(42))
	if a.Simulation().CurrentStep() != 42 {
		t.Errorf("Simulation() did not return the owning engine")
	}
}
