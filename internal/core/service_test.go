package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"
)

func newTestService(t *testing.T, j Journal) *Service {
	t.Helper()
	s := NewService(ServiceParams{Journal: j, Logger: quiet, MaxTables: 2})
	t.Cleanup(s.Close)
	return s
}

func TestService_RepairJournalsSnapshots(t *testing.T) {
	ctrl := gomock.NewController(t)
	journal := NewMockJournal(ctrl)
	s := newTestService(t, journal)

	sess, err := s.Add("spill.csv", spillTable())
	if err != nil {
		t.Fatal(err)
	}

	journal.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, entries []JournalEntry) error {
			if len(entries) != 1 {
				t.Fatalf("got %d entries, want 1", len(entries))
			}
			e := entries[0]
			if e.TableID != sess.ID || e.Operation != OpStretchByIndex || e.Outcome != OutcomeRepaired {
				t.Errorf("entry = %+v", e)
			}
			wantBefore := []Cell{Str("a"), Str("b"), Str(`c",d`), Str(""), null, null}
			if diff := cmp.Diff(wantBefore, e.Before); diff != "" {
				t.Errorf("before (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(Strs("a", "b", "c", "", "d", ""), e.After); diff != "" {
				t.Errorf("after (-want +got):\n%s", diff)
			}
			return nil
		})

	report, err := s.Repair(context.Background(), sess.ID, RepairRequest{
		Op:              OpStretchByIndex,
		BreakdownColumn: "c2",
		Steps:           2,
		Delimiter:       ",",
		Drops:           []string{`"`},
	})
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if diff := cmp.Diff([]int{0}, report.RepairedIndices()); diff != "" {
		t.Errorf("repaired (-want +got):\n%s", diff)
	}
}

func TestService_FailedRepairIsJournaled(t *testing.T) {
	ctrl := gomock.NewController(t)
	journal := NewMockJournal(ctrl)
	s := newTestService(t, journal)
	sess, _ := s.Add("spill.csv", spillTable())

	journal.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, entries []JournalEntry) error {
			if len(entries) != 1 || entries[0].Outcome != OutcomeFailed || entries[0].ErrorKind != "out_of_bounds" {
				t.Errorf("entries = %+v", entries)
			}
			return nil
		})

	_, err := s.Repair(context.Background(), sess.ID, RepairRequest{
		Op: OpStretchByIndex, BreakdownColumn: "c2", Steps: 9, Delimiter: ",",
	})
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("error = %v, want ErrOutOfBounds", err)
	}
}

func TestService_JournalErrorDoesNotFailRepair(t *testing.T) {
	ctrl := gomock.NewController(t)
	journal := NewMockJournal(ctrl)
	s := newTestService(t, journal)
	sess, _ := s.Add("auto.csv", autoTable())

	journal.EXPECT().Record(gomock.Any(), gomock.Len(4)).Return(errors.New("disk full"))

	report, err := s.Repair(context.Background(), sess.ID, RepairRequest{
		Op: OpAutoStretch, Detect: true, Delimiter: ",", Drops: []string{`"`},
	})
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	// detection picks rows 1..4; 2 and 3 are ambiguous
	if diff := cmp.Diff([]int{1, 4}, report.RepairedIndices()); diff != "" {
		t.Errorf("repaired (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 3}, report.FailedIndices()); diff != "" {
		t.Errorf("failed (-want +got):\n%s", diff)
	}
}

func TestService_History(t *testing.T) {
	ctrl := gomock.NewController(t)
	journal := NewMockJournal(ctrl)
	s := newTestService(t, journal)
	sess, _ := s.Add("t.csv", spillTable())

	want := []JournalEntry{{TableID: sess.ID, Operation: OpShareLeft}}
	journal.EXPECT().List(gomock.Any(), sess.ID, 10).Return(want, nil)

	got, err := s.History(context.Background(), sess.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}

	journal.EXPECT().List(gomock.Any(), sess.ID, 0).Return(nil, errors.New("boom"))
	if _, err := s.History(context.Background(), sess.ID, 0); err == nil {
		t.Error("expected journal error")
	}
}

func TestService_Sessions(t *testing.T) {
	s := newTestService(t, nil)

	if _, err := s.Get("missing"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Get error = %v, want ErrTableNotFound", err)
	}

	a, err := s.Open(context.Background(), "a.csv", func(context.Context) (*Table, error) {
		return spillTable(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("b.csv", spillTable()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("c.csv", spillTable()); !errors.Is(err, ErrTooManyTables) {
		t.Errorf("third Add error = %v, want ErrTooManyTables", err)
	}

	if got := len(s.List()); got != 2 {
		t.Errorf("List has %d sessions, want 2", got)
	}
	if err := s.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(a.ID); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("second Delete error = %v", err)
	}
}

func TestService_AddWithID(t *testing.T) {
	s := newTestService(t, nil)

	sess, err := s.AddWithID("/data/orders.csv", "orders.csv", spillTable())
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "/data/orders.csv" {
		t.Errorf("ID = %q", sess.ID)
	}
	if _, err := s.AddWithID("/data/orders.csv", "orders.csv", spillTable()); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("duplicate AddWithID error = %v, want ErrInvalidRequest", err)
	}
}

func TestService_OpenLoadError(t *testing.T) {
	s := newTestService(t, nil)
	loadErr := errors.New("bad file")

	_, err := s.Open(context.Background(), "x.csv", func(context.Context) (*Table, error) {
		return nil, loadErr
	})
	if !errors.Is(err, loadErr) {
		t.Errorf("error = %v, want %v", err, loadErr)
	}
	if got := s.Limiter().Active(); got != 0 {
		t.Errorf("limiter slot leaked: %d active", got)
	}
}

func TestService_EvictExpired(t *testing.T) {
	s := newTestService(t, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old, _ := s.Add("old.csv", spillTable())
	now = now.Add(DefaultSessionTTL / 2)
	fresh, _ := s.Add("fresh.csv", spillTable())
	now = now.Add(DefaultSessionTTL/2 + time.Minute)

	if n := s.EvictExpired(); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, err := s.Get(old.ID); !errors.Is(err, ErrTableNotFound) {
		t.Error("old session survived eviction")
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Errorf("fresh session evicted: %v", err)
	}
}

func TestService_StartClose(t *testing.T) {
	s := NewService(ServiceParams{Logger: quiet})
	s.Start(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	s.Close()
	s.Close()
}

func TestExtract(t *testing.T) {
	tbl := inspectTable()
	in := NewInspector(quiet)

	res, err := Extract(in, tbl, ExtractRequest{By: ExtractValue, Values: []string{"Acme"}, Column: "name"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 4}, res.Table.Indices()); diff != "" {
		t.Errorf("indices (-want +got):\n%s", diff)
	}

	if _, err := Extract(in, tbl, ExtractRequest{By: "fuzzy"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}
