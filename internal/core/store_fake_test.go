package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// testTable is registered for the package tests.
const testTable = "vehicles_test"

func init() {
	Register(TableDefinition{
		Info: TableInfo{
			Key:          testTable,
			Group:        "Test",
			Label:        "Vehicles",
			IdentityKeys: []string{"vin", "interne_nummer"},
		},
		FieldSpecs: []FieldSpec{
			{Name: ColumnUsername, Type: FieldText},
			{Name: ColumnToken, Type: FieldInteger},
			{Name: "kundennummer", Type: FieldText, Required: true},
			{Name: "interne_nummer", Type: FieldText, Required: true},
			{Name: "car_type", Type: FieldText, Required: true},
			{Name: "marke", Type: FieldText, Required: true},
			{Name: "modell", Type: FieldText, Required: true},
			{Name: "vin", Type: FieldText, Size: 17},
			{Name: "preis", Type: FieldDecimal},
			{Name: "kilometer", Type: FieldInteger},
			{Name: "ez", Type: FieldDate},
			{Name: "hu", Type: FieldDate},
			{Name: "klima", Type: FieldBool},
			{Name: "farbe", Type: FieldText},
		},
		Stamped: true,
	})
}

// memStore is an in-memory Store with savepoint semantics and unique
// identity checks that mirror the SQL partial indexes.
type memStore struct {
	mu        sync.Mutex
	committed map[string][]Record

	// Hooks for failure injection. failWrite is called before every
	// insert/update; returning an error fails that write.
	failWrite    func(op string, rec Record) error
	savepointErr error
	commitErr    error
	beginErr     error

	begun      int
	rolledBack int
}

func newMemStore() *memStore {
	return &memStore{committed: make(map[string][]Record)}
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.begun++
	return &memTx{
		store:      s,
		rows:       cloneTables(s.committed),
		savepoints: make(map[string]map[string][]Record),
	}, nil
}

// rows returns the committed rows of a table.
func (s *memStore) rows(table string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRows(s.committed[table])
}

// seed stores rows as already committed.
func (s *memStore) seed(table string, recs ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed[table] = append(s.committed[table], cloneRows(recs)...)
}

type memTx struct {
	store      *memStore
	rows       map[string][]Record
	savepoints map[string]map[string][]Record
	done       bool
}

var errTxDone = errors.New("transaction already closed")

func (t *memTx) Insert(ctx context.Context, table string, rec Record) error {
	if t.done {
		return errTxDone
	}
	if t.store.failWrite != nil {
		if err := t.store.failWrite("insert", rec); err != nil {
			return err
		}
	}
	if vin, _ := rec["vin"].(string); vin != "" {
		if countMatching(t.rows[table], "vin", vin) > 0 {
			return fmt.Errorf("duplicate key value violates unique constraint on vin %q", vin)
		}
	} else if nr, _ := rec["interne_nummer"].(string); nr != "" {
		for _, r := range t.rows[table] {
			if v, _ := r["vin"].(string); v == "" && r["interne_nummer"] == nr {
				return fmt.Errorf("duplicate key value violates unique constraint on interne_nummer %q", nr)
			}
		}
	}
	t.rows[table] = append(t.rows[table], cloneRecord(rec))
	return nil
}

func (t *memTx) Update(ctx context.Context, table string, rec Record, match Match) error {
	if t.done {
		return errTxDone
	}
	if t.store.failWrite != nil {
		if err := t.store.failWrite("update", rec); err != nil {
			return err
		}
	}
	var hits []Record
	for _, r := range t.rows[table] {
		if r[match.Column] == match.Value {
			hits = append(hits, r)
		}
	}
	if len(hits) != 1 {
		return fmt.Errorf("%d rows matched %s=%v, want 1", len(hits), match.Column, match.Value)
	}
	for k, v := range rec {
		hits[0][k] = v
	}
	return nil
}

func (t *memTx) Count(ctx context.Context, table string, match Match) (int, error) {
	if t.done {
		return 0, errTxDone
	}
	return countMatching(t.rows[table], match.Column, match.Value), nil
}

func (t *memTx) Savepoint(ctx context.Context, name string) error {
	if t.store.savepointErr != nil {
		return t.store.savepointErr
	}
	t.savepoints[name] = cloneTables(t.rows)
	return nil
}

func (t *memTx) RollbackTo(ctx context.Context, name string) error {
	snap, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("savepoint %s does not exist", name)
	}
	t.rows = cloneTables(snap)
	return nil
}

func (t *memTx) Release(ctx context.Context, name string) error {
	delete(t.savepoints, name)
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	t.done = true
	t.store.mu.Lock()
	t.store.committed = t.rows
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.mu.Lock()
	t.store.rolledBack++
	t.store.mu.Unlock()
	return nil
}

func countMatching(rows []Record, col string, value any) int {
	n := 0
	for _, r := range rows {
		if v, ok := r[col]; ok && v == value {
			n++
		}
	}
	return n
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func cloneRows(rows []Record) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = cloneRecord(r)
	}
	return out
}

func cloneTables(t map[string][]Record) map[string][]Record {
	out := make(map[string][]Record, len(t))
	for k, rows := range t {
		out[k] = cloneRows(rows)
	}
	return out
}

// memRunLog records runs in memory.
type memRunLog struct {
	mu   sync.Mutex
	runs []ImportRun
}

func (l *memRunLog) RecordRun(ctx context.Context, run ImportRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

func (l *memRunLog) ListRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ImportRun, 0, len(l.runs))
	for i := len(l.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.runs[i])
	}
	return out, nil
}

func (l *memRunLog) FindRunByChecksum(ctx context.Context, table, checksum string) (ImportRun, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.runs {
		if r.TableKey == table && r.Checksum == checksum && r.Status == RunCommitted {
			return r, true, nil
		}
	}
	return ImportRun{}, false, nil
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
