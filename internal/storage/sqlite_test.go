package storage

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite("file:" + filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return NewStore(db)
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	req := map[string]any{"fund_pool": []string{"A", "B"}}
	if err := s.Record(FormOptimize, "web", req, OutcomeOK, "", 100); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := s.Record(FormFunds, "telegram", map[string]string{"fund_type": ""}, OutcomeError, "boom", 200); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	runs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(runs))
	}
	if runs[0].Form != FormFunds || runs[0].Detail != "boom" || runs[0].Source != "telegram" {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].Request != `{"fund_pool":["A","B"]}` {
		t.Errorf("runs[1].Request = %s", runs[1].Request)
	}
}

func TestStore_Usage(t *testing.T) {
	s := openTestStore(t)
	for _, r := range []struct {
		form, outcome string
		ts            int64
	}{
		{FormOptimize, OutcomeOK, 10},
		{FormOptimize, OutcomeStale, 20},
		{FormOptimize, OutcomeOK, 30},
		{FormBacktest, OutcomeError, 40},
		{FormFunds, OutcomeOK, 1},
	} {
		if err := s.Record(r.form, "web", nil, r.outcome, "", r.ts); err != nil {
			t.Fatal(err)
		}
	}

	usage, err := s.Usage(5)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if _, ok := usage[FormFunds]; ok {
		t.Errorf("Usage() includes run older than since")
	}
	opt := usage[FormOptimize]
	if opt == nil || opt.Count != 3 || opt.Outcomes[OutcomeOK] != 2 || opt.Outcomes[OutcomeStale] != 1 {
		t.Errorf("usage[optimize] = %+v", opt)
	}
	if bt := usage[FormBacktest]; bt == nil || bt.Count != 1 {
		t.Errorf("usage[backtest] = %+v", bt)
	}
}
