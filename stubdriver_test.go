package asqlite

import (
	"context"
	"errors"
	"sync"

	"asqlite/driver"
)

// stubDriver - управляемый из тестов драйвер: фиксирует порядок вызовов
// и умеет блокировать выполнение оператора до команды теста.
type stubDriver struct {
	safety driver.ThreadSafety
	conn   *stubConn
	opened bool
}

func newStubDriver(safety driver.ThreadSafety) *stubDriver {
	return &stubDriver{safety: safety, conn: newStubConn()}
}

func (d *stubDriver) ThreadSafety() driver.ThreadSafety { return d.safety }

func (d *stubDriver) Open(ctx context.Context, path string, opts driver.Options) (driver.Conn, error) {
	d.opened = true
	return d.conn, nil
}

var errStubInterrupted = errors.New("stub: interrupted")

type stubConn struct {
	mu          sync.Mutex
	calls       []string
	closed      bool
	interrupted bool

	// blockOn - запрос, выполнение которого приостанавливается
	// до закрытия release; started сигнализирует о его начале
	blockOn string
	release chan struct{}
	started chan struct{}
}

func newStubConn() *stubConn {
	return &stubConn{release: make(chan struct{}), started: make(chan struct{})}
}

func (c *stubConn) record(query string) {
	c.mu.Lock()
	c.calls = append(c.calls, query)
	c.mu.Unlock()
}

func (c *stubConn) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *stubConn) Execute(ctx context.Context, query string, args []any) (driver.ResultSet, error) {
	c.record(query)
	if query == c.blockOn {
		close(c.started)
		<-c.release
		c.mu.Lock()
		interrupted := c.interrupted
		c.mu.Unlock()
		if interrupted {
			return nil, errStubInterrupted
		}
	}
	return stubResultSet{}, nil
}

func (c *stubConn) ExecuteMany(ctx context.Context, query string, argSets [][]any) (driver.ResultSet, error) {
	c.record(query)
	return stubResultSet{}, nil
}

func (c *stubConn) ExecuteScript(ctx context.Context, script string) error {
	c.record(script)
	return nil
}

// Interrupt помечает текущий заблокированный запрос прерванным и отпускает его.
func (c *stubConn) Interrupt() {
	c.mu.Lock()
	if !c.interrupted {
		c.interrupted = true
		close(c.release)
	}
	c.mu.Unlock()
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type stubResultSet struct{}

func (stubResultSet) Columns() []string { return nil }

func (stubResultSet) Next() ([]any, error) { return nil, nil }

func (stubResultSet) RowsAffected() int64 { return 0 }

func (stubResultSet) LastInsertID() int64 { return 0 }

func (stubResultSet) Close() error { return nil }
