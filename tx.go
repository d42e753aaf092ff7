package asqlite

import (
	"context"
	"fmt"
	"sync"

	"asqlite/driver"
)

// txKey используется как ключ для хранения транзакции в context.Context
type txKey struct{}

// txState - состояние транзакции: Active -> {Committed, RolledBack}.
type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
)

// Tx - транзакция на соединении. На одном соединении может быть не
// более одной активной транзакции; попытка начать вторую завершается
// ErrTxActive до каких-либо изменений состояния.
//
// Commit и Rollback одноразовые: повторный переход завершается ErrTxDone.
type Tx struct {
	conn *Conn

	mu    sync.Mutex
	state txState
}

// Begin начинает транзакцию. BEGIN выполняется с режимом блокировки
// из настроек соединения.
func (c *Conn) Begin(ctx context.Context) (*Tx, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}

	c.txMu.Lock()
	if c.activeTx != nil {
		c.txMu.Unlock()
		return nil, fmt.Errorf("%w: nested transactions are not supported", ErrTxActive)
	}
	tx := &Tx{conn: c}
	c.activeTx = tx
	c.txMu.Unlock()

	query := "BEGIN " + string(c.lockMode)
	if _, err := c.run(ctx, func(dc driver.Conn) (any, error) {
		return dc.Execute(ctx, query, nil)
	}); err != nil {
		c.clearTx(tx)
		return nil, err
	}

	c.log.Debug("transaction begun", "mode", string(c.lockMode))
	return tx, nil
}

// Transaction выполняет fn внутри транзакции.
// Если fn возвращает ошибку, транзакция откатывается и возвращается
// исходная ошибка; ошибка самого отката не замещает её, а дополняет.
// Если fn завершается успешно, транзакция коммитится.
// Транзакция доступна внутри fn через TxFrom(ctx).
func (c *Conn) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		if tx.Active() {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !HasKind(rbErr, KindTxDone) {
				return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
		}
		return err
	}

	if tx.Active() {
		return tx.Commit(ctx)
	}
	return nil
}

// TxFrom извлекает транзакцию из контекста, созданного Transaction.
func TxFrom(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// Active сообщает, активна ли ещё транзакция.
func (t *Tx) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == txActive
}

// Commit фиксирует транзакцию.
func (t *Tx) Commit(ctx context.Context) error {
	return t.end(ctx, "COMMIT", txCommitted)
}

// Rollback откатывает транзакцию.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.end(ctx, "ROLLBACK", txRolledBack)
}

// end выполняет завершающий оператор и переводит транзакцию
// в терминальное состояние.
func (t *Tx) end(ctx context.Context, query string, next txState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txActive {
		return fmt.Errorf("%w: cannot %s", ErrTxDone, query)
	}

	if _, err := t.conn.run(ctx, func(dc driver.Conn) (any, error) {
		return dc.Execute(ctx, query, nil)
	}); err != nil {
		return err
	}

	t.state = next
	t.conn.clearTx(t)
	t.conn.log.Debug("transaction finished", "result", query)
	return nil
}

// clearTx снимает активную транзакцию с соединения.
func (c *Conn) clearTx(tx *Tx) {
	c.txMu.Lock()
	if c.activeTx == tx {
		c.activeTx = nil
	}
	c.txMu.Unlock()
}
