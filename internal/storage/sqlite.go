package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

// Form names recorded in the run history.
const (
	FormFunds          = "funds"
	FormFund           = "fund"
	FormOptimize       = "optimize"
	FormBacktest       = "backtest"
	FormLegacyOptimize = "legacy_optimize"
	FormMarket         = "market"
	FormAnalyze        = "analyze"
	FormFrontier       = "frontier"
	FormTree           = "tree"
)

// Run outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeStale = "stale"
)

type DB interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	Close() error
}

type Store struct{ db DB }

// Run is one recorded submission.
type Run struct {
	Form    string
	Source  string
	Request string
	Outcome string
	Detail  string
	TS      int64
}

// UsageStats counts submissions of one form.
type UsageStats struct {
	Count    int
	Outcomes map[string]int
}

func OpenSQLite(dsn string) (DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)
	return db, nil
}

func InitSchema(db DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs(
		form TEXT, source TEXT, request TEXT, outcome TEXT, detail TEXT, ts INTEGER
	)`)
	return err
}

func NewStore(db DB) *Store { return &Store{db: db} }

// Record stores one submission; request is serialised as JSON.
func (s *Store) Record(form, source string, request any, outcome, detail string, ts int64) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO runs(form,source,request,outcome,detail,ts) VALUES(?,?,?,?,?,?)`,
		form, source, string(body), outcome, detail, ts)
	return err
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT form,source,request,outcome,detail,ts FROM runs ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.Form, &r.Source, &r.Request, &r.Outcome, &r.Detail, &r.TS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Usage counts runs per form and outcome since ts.
func (s *Store) Usage(since int64) (map[string]*UsageStats, error) {
	rows, err := s.db.Query(`SELECT form,outcome,COUNT(*) FROM runs WHERE ts>=? GROUP BY form,outcome`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]*UsageStats{}
	for rows.Next() {
		var form, outcome string
		var n int
		if err := rows.Scan(&form, &outcome, &n); err != nil {
			return nil, err
		}
		st, ok := out[form]
		if !ok {
			st = &UsageStats{Outcomes: map[string]int{}}
			out[form] = st
		}
		st.Count += n
		st.Outcomes[outcome] += n
	}
	return out, rows.Err()
}
