package asqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"asqlite/driver"
)

// Conn - асинхронное соединение с базой данных.
// Владеет соединением нативного драйвера и диспетчером, сериализующим
// все блокирующие вызовы. Безопасен для использования из нескольких
// горутин: конкурентные вызовы чередуются на границах целых операторов.
type Conn struct {
	disp *dispatcher
	log  *slog.Logger

	closed atomic.Bool

	mu      sync.Mutex // защищает factory
	factory RowFactory

	lockMode TxLockMode

	txMu     sync.Mutex
	activeTx *Tx
}

// run ставит вызов драйвера в очередь диспетчера и ожидает результат.
func (c *Conn) run(ctx context.Context, fn func(dc driver.Conn) (any, error)) (any, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	return c.disp.submit(ctx, func() (any, error) {
		return fn(c.disp.driverConn())
	})
}

// Cursor создает новый курсор на этом соединении.
// Курсор фиксирует текущую стратегию представления строк.
func (c *Conn) Cursor() (*Cursor, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	return c.newCursor(), nil
}

func (c *Conn) newCursor() *Cursor {
	c.mu.Lock()
	factory := c.factory
	c.mu.Unlock()
	return &Cursor{conn: c, factory: factory}
}

// Execute выполняет один SQL-оператор и возвращает курсор с его результатом.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (*Cursor, error) {
	cur := c.newCursor()
	if err := cur.Execute(ctx, query, args...); err != nil {
		return nil, err
	}
	return cur, nil
}

// ExecuteMany выполняет оператор для каждого набора параметров
// в заданном порядке и возвращает курсор.
func (c *Conn) ExecuteMany(ctx context.Context, query string, argSets [][]any) (*Cursor, error) {
	cur := c.newCursor()
	if err := cur.ExecuteMany(ctx, query, argSets); err != nil {
		return nil, err
	}
	return cur, nil
}

// ExecuteScript выполняет скрипт из нескольких SQL-операторов.
func (c *Conn) ExecuteScript(ctx context.Context, script string) (*Cursor, error) {
	cur := c.newCursor()
	if err := cur.ExecuteScript(ctx, script); err != nil {
		return nil, err
	}
	return cur, nil
}

// RowFactory возвращает текущую стратегию представления строк.
func (c *Conn) RowFactory() RowFactory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.factory
}

// SetRowFactory меняет стратегию представления строк.
// Смена действует только на курсоры, созданные после вызова.
func (c *Conn) SetRowFactory(f RowFactory) {
	c.mu.Lock()
	c.factory = f
	c.mu.Unlock()
}

// Interrupt прерывает выполняющийся сейчас запрос через механизм
// прерывания нативного драйвера. Рекомендательный: не снимает работу,
// ещё не начавшую выполняться, и не гарантирует немедленной остановки.
func (c *Conn) Interrupt() {
	c.disp.interrupt()
}

// Commit намеренно не поддерживается: границы транзакций выражаются
// только через Transaction или Begin, где проверяется их вложенность.
func (c *Conn) Commit() error {
	return fmt.Errorf("%w: use Transaction or Begin for transaction control", ErrUnsupportedOperation)
}

// Rollback намеренно не поддерживается, см. Commit.
func (c *Conn) Rollback() error {
	return fmt.Errorf("%w: use Transaction or Begin for transaction control", ErrUnsupportedOperation)
}

// Close закрывает соединение. Повторный вызов - no-op.
// Новые операции завершаются ErrConnClosed немедленно; работа,
// поставленная в очередь до закрытия, получает ErrConnClosed вместо
// выполнения, после чего закрывается соединение драйвера и воркер
// завершается. Ни одно ожидание не остаётся без ответа.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := c.disp.shutdown(context.Background(), func() (any, error) {
		dc := c.disp.driverConn()
		if dc == nil {
			return nil, nil
		}
		return nil, dc.Close()
	})
	if err != nil && !errors.Is(err, ErrConnClosed) {
		return err
	}

	c.log.Info("database connection closed")
	return nil
}
