package statedb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *StateDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), FileName)
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// openAs opens dbPath as if it were a different process.
func openAs(t *testing.T, dbPath string, pid int) *StateDB {
	t.Helper()
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	db.pid = pid
	return db
}

type heartbeatRow struct {
	pid       int
	heartbeat int64
	primary   bool
}

func heartbeatRows(t *testing.T, s *StateDB) []heartbeatRow {
	t.Helper()
	rows, err := s.db.Query("SELECT pid, heartbeat, is_primary FROM instance_heartbeats ORDER BY pid")
	if err != nil {
		t.Fatalf("Query heartbeats: %v", err)
	}
	defer rows.Close()
	var out []heartbeatRow
	for rows.Next() {
		var r heartbeatRow
		var primary int
		if err := rows.Scan(&r.pid, &r.heartbeat, &primary); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		r.primary = primary == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Rows: %v", err)
	}
	return out
}

func insertHeartbeat(t *testing.T, s *StateDB, pid int, at int64, primary bool) {
	t.Helper()
	p := 0
	if primary {
		p = 1
	}
	_, err := s.db.Exec(
		"INSERT INTO instance_heartbeats (pid, started, heartbeat, is_primary) VALUES (?, ?, ?, ?)",
		pid, at, at, p,
	)
	if err != nil {
		t.Fatalf("Insert heartbeat: %v", err)
	}
}

func TestOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", FileName)

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db1.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := db1.SetMeta("hello", "world"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer db2.Close()
	if err := db2.Migrate(); err != nil {
		t.Fatalf("Migrate (repeat): %v", err)
	}

	v, err := db2.GetMeta("hello")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "world" {
		t.Errorf("Expected world, got %q", v)
	}
	if v, _ := db2.GetMeta("schema_version"); v != "1" {
		t.Errorf("Expected schema_version 1, got %q", v)
	}
}

func TestHeartbeat(t *testing.T) {
	db := newTestDB(t)

	if err := db.RegisterInstance(true); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}
	if err := db.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	rows := heartbeatRows(t, db)
	if len(rows) != 1 || rows[0].pid != db.PID() {
		t.Fatalf("Expected our row, got %+v", rows)
	}
	if age := time.Now().Unix() - rows[0].heartbeat; age > 5 {
		t.Errorf("Heartbeat is %ds old", age)
	}

	if err := db.UnregisterInstance(); err != nil {
		t.Fatalf("UnregisterInstance: %v", err)
	}

	if rows := heartbeatRows(t, db); len(rows) != 0 {
		t.Errorf("Expected no rows after unregister, got %+v", rows)
	}
}

func TestHeartbeatCleanup(t *testing.T) {
	db := newTestDB(t)

	insertHeartbeat(t, db, 99999, time.Now().Add(-2*time.Minute).Unix(), false)

	if err := db.RegisterInstance(false); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}

	if err := db.CleanDeadInstances(30 * time.Second); err != nil {
		t.Fatalf("CleanDeadInstances: %v", err)
	}

	rows := heartbeatRows(t, db)
	if len(rows) != 1 || rows[0].pid != db.PID() {
		t.Errorf("Expected only our pid after cleanup, got %+v", rows)
	}
}

func TestMetadata(t *testing.T) {
	db := newTestDB(t)

	v, err := db.GetMeta("missing")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "" {
		t.Errorf("Expected empty for missing key, got %q", v)
	}

	if err := db.SetMeta("k", "v1"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := db.SetMeta("k", "v2"); err != nil {
		t.Fatalf("SetMeta overwrite: %v", err)
	}
	if v, _ := db.GetMeta("k"); v != "v2" {
		t.Errorf("Expected v2, got %q", v)
	}
}

func TestElectPrimary_FirstInstance(t *testing.T) {
	db := newTestDB(t)

	if err := db.RegisterInstance(false); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}
	isPrimary, err := db.ElectPrimary(30 * time.Second)
	if err != nil {
		t.Fatalf("ElectPrimary: %v", err)
	}
	if !isPrimary {
		t.Error("First instance should become primary")
	}

	isPrimary, err = db.ElectPrimary(30 * time.Second)
	if err != nil {
		t.Fatalf("ElectPrimary (repeat): %v", err)
	}
	if !isPrimary {
		t.Error("Should still be primary on repeat call")
	}
}

func TestElectPrimary_Unregistered(t *testing.T) {
	db := newTestDB(t)

	isPrimary, err := db.ElectPrimary(30 * time.Second)
	if err == nil {
		t.Fatal("Expected an error electing without a registration")
	}
	if isPrimary {
		t.Error("Unregistered process must not be primary")
	}
}

func TestElectPrimary_SecondInstance(t *testing.T) {
	db := newTestDB(t)

	insertHeartbeat(t, db, 10001, time.Now().Unix(), true)

	if err := db.RegisterInstance(false); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}

	isPrimary, err := db.ElectPrimary(30 * time.Second)
	if err != nil {
		t.Fatalf("ElectPrimary: %v", err)
	}
	if isPrimary {
		t.Error("Second instance should NOT become primary while first is alive")
	}
}

func TestElectPrimary_Failover(t *testing.T) {
	db := newTestDB(t)

	insertHeartbeat(t, db, 10001, time.Now().Add(-2*time.Minute).Unix(), true)

	if err := db.RegisterInstance(false); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}

	isPrimary, err := db.ElectPrimary(30 * time.Second)
	if err != nil {
		t.Fatalf("ElectPrimary: %v", err)
	}
	if !isPrimary {
		t.Error("Should become primary after stale primary is cleared")
	}

	var stalePrimary int
	err = db.db.QueryRow(
		"SELECT is_primary FROM instance_heartbeats WHERE pid = 10001",
	).Scan(&stalePrimary)
	if err != nil {
		t.Fatalf("Query stale PID: %v", err)
	}
	if stalePrimary != 0 {
		t.Error("Stale PID should have is_primary=0")
	}
}

func TestResignPrimary(t *testing.T) {
	db := newTestDB(t)

	if err := db.RegisterInstance(false); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}
	if ok, err := db.ElectPrimary(30 * time.Second); err != nil || !ok {
		t.Fatalf("ElectPrimary: ok=%v err=%v", ok, err)
	}

	if err := db.ResignPrimary(); err != nil {
		t.Fatalf("ResignPrimary: %v", err)
	}

	rows := heartbeatRows(t, db)
	if len(rows) != 1 || rows[0].primary {
		t.Errorf("Should not be primary after resign: %+v", rows)
	}

	isPrimary, err := db.ElectPrimary(30 * time.Second)
	if err != nil {
		t.Fatalf("ElectPrimary after resign: %v", err)
	}
	if !isPrimary {
		t.Error("Should become primary again after resign")
	}
}

func TestConcurrentElection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), FileName)

	const n = 5
	dbs := make([]*StateDB, n)
	for i := range dbs {
		dbs[i] = openAs(t, dbPath, 20000+i)
		defer dbs[i].Close()
		if err := dbs[i].RegisterInstance(false); err != nil {
			t.Fatalf("RegisterInstance %d: %v", i, err)
		}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for _, db := range dbs {
		wg.Add(1)
		go func(db *StateDB) {
			defer wg.Done()
			ok, err := db.ElectPrimary(30 * time.Second)
			if err != nil {
				t.Errorf("ElectPrimary pid %d: %v", db.pid, err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(db)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly one primary, got %d", winners)
	}
}

func TestAcquire_SecondProcessRefused(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), FileName)
	opts := LeaseOptions{Heartbeat: 20 * time.Millisecond, StaleAfter: 5 * time.Second}

	first, err := Acquire(context.Background(), dbPath, opts)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	other := openAs(t, dbPath, first.db.PID()+1)
	if _, err := acquireWith(context.Background(), other, opts.withDefaults()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Expected ErrAlreadyRunning, got %v", err)
	}

	rows := heartbeatRows(t, first.db)
	if len(rows) != 1 || rows[0].pid != first.db.PID() || !rows[0].primary {
		t.Errorf("Refused process should leave no row behind: %+v", rows)
	}
}

func TestAcquire_ReleaseHandsOver(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), FileName)
	opts := LeaseOptions{Heartbeat: 20 * time.Millisecond, StaleAfter: 5 * time.Second}

	first, err := Acquire(context.Background(), dbPath, opts)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	firstPID := first.db.PID()
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Second Release: %v", err)
	}

	next := openAs(t, dbPath, firstPID+1)
	lease, err := acquireWith(context.Background(), next, opts.withDefaults())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	defer lease.Release()
}

func TestAcquire_HeartbeatAdvances(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), FileName)
	lease, err := Acquire(context.Background(), dbPath, LeaseOptions{Heartbeat: 10 * time.Millisecond, StaleAfter: time.Minute})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	past := time.Now().Add(-time.Hour).Unix()
	if _, err := lease.db.db.Exec("UPDATE instance_heartbeats SET heartbeat = ?", past); err != nil {
		t.Fatalf("Backdate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rows := heartbeatRows(t, lease.db)
		if len(rows) == 1 && rows[0].heartbeat > past {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Heartbeat never refreshed the backdated row")
}

func TestAcquire_RecordsPrimaryMeta(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), FileName)
	opts := LeaseOptions{Heartbeat: 20 * time.Millisecond, StaleAfter: 5 * time.Second}

	lease, err := Acquire(context.Background(), dbPath, opts)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease.predecessor != "" {
		t.Errorf("Fresh database should have no predecessor, got %q", lease.predecessor)
	}
	if v, _ := lease.db.GetMeta(metaPrimaryPID); v != strconv.Itoa(os.Getpid()) {
		t.Errorf("Expected primary_pid %d, got %q", os.Getpid(), v)
	}
	if v, _ := lease.db.GetMeta(metaPrimaryStarted); v == "" {
		t.Error("primary_started should be set")
	}

	check := openAs(t, dbPath, 1)
	defer check.Close()
	if err := lease.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if v, _ := check.GetMeta(metaPrimaryPID); v != "" {
		t.Errorf("Release should clear primary_pid, got %q", v)
	}
}

func TestAcquire_DetectsUnreleasedPredecessor(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), FileName)
	opts := LeaseOptions{Heartbeat: 20 * time.Millisecond, StaleAfter: 5 * time.Second}

	// A primary that was killed: its row went stale and its meta was never cleared.
	crashed := openAs(t, dbPath, 4242)
	insertHeartbeat(t, crashed, 4242, time.Now().Add(-time.Hour).Unix(), true)
	if err := crashed.SetMeta(metaPrimaryPID, "4242"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := crashed.SetMeta(metaPrimaryStarted, "1700000000"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	crashed.Close()

	next := openAs(t, dbPath, 4243)
	lease, err := acquireWith(context.Background(), next, opts.withDefaults())
	if err != nil {
		t.Fatalf("Acquire over a stale primary: %v", err)
	}
	defer lease.Release()

	if lease.predecessor != "4242" {
		t.Errorf("Expected predecessor 4242, got %q", lease.predecessor)
	}
	if v, _ := next.GetMeta(metaPrimaryPID); v != "4243" {
		t.Errorf("Expected primary_pid to move to 4243, got %q", v)
	}
	if v, _ := next.GetMeta(metaPrimaryStarted); v == "1700000000" {
		t.Error("primary_started should be rewritten for the new primary")
	}
}

func TestLeaseOptionsDefaults(t *testing.T) {
	o := LeaseOptions{}.withDefaults()
	if o.Heartbeat != DefaultHeartbeat || o.StaleAfter != DefaultStaleAfter {
		t.Errorf("Unexpected defaults: %+v", o)
	}
	o = LeaseOptions{Heartbeat: time.Minute, StaleAfter: time.Second}.withDefaults()
	if o.StaleAfter != 3*time.Minute {
		t.Errorf("StaleAfter should be raised above the heartbeat, got %v", o.StaleAfter)
	}
}
