package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type nopDriver struct{}

func (d nopDriver) Open(name string) (driver.Conn, error) {
	return nopConn{}, nil
}

type nopConn struct{}

func (nopConn) Prepare(query string) (driver.Stmt, error) { return nopStmt{}, nil }
func (nopConn) Close() error                              { return nil }
func (nopConn) Begin() (driver.Tx, error)                 { return nopTx{}, nil }
func (nopConn) Ping(ctx context.Context) error            { return nil }

type nopStmt struct{}

func (nopStmt) Close() error                                    { return nil }
func (nopStmt) NumInput() int                                   { return -1 }
func (nopStmt) Exec(args []driver.Value) (driver.Result, error) { return nopResult{}, nil }
func (nopStmt) Query(args []driver.Value) (driver.Rows, error)  { return nopRows{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

type nopResult struct{}

func (nopResult) LastInsertId() (int64, error) { return 0, nil }
func (nopResult) RowsAffected() (int64, error) { return 0, nil }

type nopRows struct{}

func (nopRows) Columns() []string              { return []string{} }
func (nopRows) Close() error                   { return nil }
func (nopRows) Next(dest []driver.Value) error { return driver.ErrBadConn }

var registerTestDriverOnce sync.Once

func ensureTestDriverRegistered() {
	registerTestDriverOnce.Do(func() {
		sql.Register("dbtest", nopDriver{})
	})
}

func useTestDriver(t *testing.T) {
	t.Helper()
	ensureTestDriverRegistered()
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		return sql.Open("dbtest", dsn)
	}
	t.Cleanup(func() { openDB = prev })
}

func resetShared(t *testing.T) {
	t.Helper()
	sharedMu.Lock()
	sharedDB = nil
	sharedPending = false
	sharedMu.Unlock()
}

func TestSharedReturnsSamePool(t *testing.T) {
	useTestDriver(t)
	resetShared(t)

	db1, err := Shared(context.Background(), "postgres://ignored", LambdaPool())
	if err != nil {
		t.Fatalf("Shared first: %v", err)
	}
	db2, err := Shared(context.Background(), "postgres://ignored", LambdaPool())
	if err != nil {
		t.Fatalf("Shared second: %v", err)
	}
	if db1 != db2 {
		t.Fatalf("expected the same pool on reuse")
	}
}

func TestSharedConcurrentCallersGetOnePool(t *testing.T) {
	useTestDriver(t)
	resetShared(t)

	var wg sync.WaitGroup
	results := make([]*sql.DB, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := Shared(context.Background(), "postgres://ignored", ServerPool())
			if err != nil {
				t.Errorf("Shared: %v", err)
				return
			}
			results[i] = conn
		}(i)
	}
	wg.Wait()
	for i, conn := range results {
		if conn != results[0] {
			t.Fatalf("caller %d got a different pool", i)
		}
	}
}

func TestOpenRejectsEmptyURL(t *testing.T) {
	if _, err := Open(context.Background(), "  ", ServerPool()); err == nil {
		t.Fatalf("expected error for empty DATABASE_URL")
	}
}

func TestPoolFromEnvAppliesOverrides(t *testing.T) {
	useTestDriver(t)

	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := PoolFromEnv(ServerPool())
	conn, err := Open(context.Background(), "postgres://ignored", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if got := conn.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", got)
	}
	if opts.MaxIdleConns != 3 {
		t.Fatalf("expected MaxIdleConns=3, got %d", opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime != 20*time.Minute {
		t.Fatalf("expected ConnMaxLifetime=20m, got %s", opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime != 45*time.Second {
		t.Fatalf("expected ConnMaxIdleTime=45s, got %s", opts.ConnMaxIdleTime)
	}
	if opts.PingTimeout != time.Second {
		t.Fatalf("expected PingTimeout=1s, got %s", opts.PingTimeout)
	}
}

func TestPoolFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("DB_PING_TIMEOUT", "soon")

	opts := PoolFromEnv(LambdaPool())
	if opts.MaxOpenConns != 2 || opts.PingTimeout != 3*time.Second {
		t.Fatalf("expected defaults to survive, got %+v", opts)
	}
}

func TestSharedRetriesAfterFailure(t *testing.T) {
	var calls int32
	ensureTestDriverRegistered()
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, driver.ErrBadConn
		}
		return sql.Open("dbtest", dsn)
	}
	t.Cleanup(func() { openDB = prev })
	resetShared(t)

	if _, err := Shared(context.Background(), "postgres://ignored", LambdaPool()); err == nil {
		t.Fatalf("expected first call to fail")
	}
	conn, err := Shared(context.Background(), "postgres://ignored", LambdaPool())
	if err != nil {
		t.Fatalf("expected second call to succeed: %v", err)
	}
	if conn == nil {
		t.Fatalf("expected pool after retry")
	}
}

func TestMigrateNilDatabaseIsNoop(t *testing.T) {
	if err := Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate(nil) = %v", err)
	}
}
