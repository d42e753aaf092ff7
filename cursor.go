package asqlite

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"asqlite/driver"
)

// Cursor - курсор соединения: держит результат последнего выполненного
// оператора и выдаёт его строки. Все блокирующие вызовы проходят через
// диспетчер родительского соединения. Операции курсора валидны, пока
// открыты и сам курсор, и его родительское соединение.
type Cursor struct {
	conn    *Conn
	factory RowFactory

	closed atomic.Bool

	// mu сериализует операции на одном курсоре между горутинами
	mu           sync.Mutex
	result       driver.ResultSet
	columns      []string
	rowsAffected int64
	lastInsertID int64
}

// guardLocked проверяет, что курсор и его соединение открыты.
func (cur *Cursor) guardLocked() error {
	if cur.conn.closed.Load() {
		return ErrConnClosed
	}
	if cur.closed.Load() {
		return ErrCursorClosed
	}
	return nil
}

// Execute выполняет один SQL-оператор на этом курсоре.
// Результат предыдущего оператора закрывается. Курсор можно
// переиспользовать, в том числе внутри транзакции.
func (cur *Cursor) Execute(ctx context.Context, query string, args ...any) error {
	return cur.execute(ctx, func(dc driver.Conn) (driver.ResultSet, error) {
		return dc.Execute(ctx, query, args)
	})
}

// ExecuteMany выполняет оператор для каждого набора параметров в заданном порядке.
func (cur *Cursor) ExecuteMany(ctx context.Context, query string, argSets [][]any) error {
	return cur.execute(ctx, func(dc driver.Conn) (driver.ResultSet, error) {
		return dc.ExecuteMany(ctx, query, argSets)
	})
}

// ExecuteScript выполняет скрипт из нескольких SQL-операторов.
func (cur *Cursor) ExecuteScript(ctx context.Context, script string) error {
	return cur.execute(ctx, func(dc driver.Conn) (driver.ResultSet, error) {
		return nil, dc.ExecuteScript(ctx, script)
	})
}

func (cur *Cursor) execute(ctx context.Context, call func(dc driver.Conn) (driver.ResultSet, error)) error {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	if err := cur.guardLocked(); err != nil {
		return err
	}

	prev := cur.result
	value, err := cur.conn.run(ctx, func(dc driver.Conn) (any, error) {
		if prev != nil {
			_ = prev.Close()
		}
		rs, err := call(dc)
		if err != nil {
			return nil, err
		}
		if rs == nil {
			return nil, nil
		}
		return rs, nil
	})
	if err != nil {
		// Прежний результат уже мог быть закрыт на воркере - забываем его
		cur.result = nil
		return err
	}

	cur.result = nil
	cur.columns = nil
	cur.rowsAffected = -1
	cur.lastInsertID = -1
	if value != nil {
		rs := value.(driver.ResultSet)
		cur.result = rs
		cur.columns = rs.Columns()
		cur.rowsAffected = rs.RowsAffected()
		cur.lastInsertID = rs.LastInsertID()
	}
	return nil
}

// FetchOne возвращает следующую строку результата.
// По исчерпанию результата возвращает (nil, nil).
// Блокирующее чтение выполняется на воркере диспетчера.
func (cur *Cursor) FetchOne(ctx context.Context) (*Row, error) {
	rows, err := cur.fetch(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FetchMany возвращает до n следующих строк результата; меньше -
// если результат исчерпан. Повторные вызовы продолжают с того места,
// где остановился предыдущий.
func (cur *Cursor) FetchMany(ctx context.Context, n int) ([]*Row, error) {
	return cur.fetch(ctx, n)
}

// FetchAll возвращает все оставшиеся строки результата.
func (cur *Cursor) FetchAll(ctx context.Context) ([]*Row, error) {
	return cur.fetch(ctx, -1)
}

// fetch вычитывает до limit строк (без ограничения при limit < 0)
// одной единицей работы на воркере.
func (cur *Cursor) fetch(ctx context.Context, limit int) ([]*Row, error) {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	if err := cur.guardLocked(); err != nil {
		return nil, err
	}
	if cur.result == nil || limit == 0 {
		return nil, nil
	}

	res := cur.result
	value, err := cur.conn.run(ctx, func(driver.Conn) (any, error) {
		var fetched [][]any
		for limit < 0 || len(fetched) < limit {
			values, err := res.Next()
			if err != nil {
				return nil, err
			}
			if values == nil {
				break
			}
			fetched = append(fetched, values)
		}
		if fetched == nil {
			return nil, nil
		}
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	raw := value.([][]any)
	rows := make([]*Row, 0, len(raw))
	for _, values := range raw {
		rows = append(rows, newRow(cur.factory, cur.columns, values))
	}
	return rows, nil
}

// All возвращает ленивый однопроходный итератор по оставшимся строкам,
// эквивалентный повторным FetchOne до исчерпания. Исчерпание результата
// завершает итерацию без ошибки.
func (cur *Cursor) All(ctx context.Context) iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		for {
			row, err := cur.FetchOne(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if row == nil {
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Columns возвращает имена колонок последнего результата.
func (cur *Cursor) Columns() []string {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.columns
}

// RowsAffected возвращает число строк, изменённых последним оператором
// (-1 для выборки).
func (cur *Cursor) RowsAffected() int64 {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.rowsAffected
}

// LastInsertID возвращает rowid последней вставленной строки (-1 для выборки).
func (cur *Cursor) LastInsertID() int64 {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.lastInsertID
}

// Close закрывает курсор. Повторный вызов - no-op.
// Последующие операции на курсоре завершаются ErrCursorClosed.
func (cur *Cursor) Close() error {
	if !cur.closed.CompareAndSwap(false, true) {
		return nil
	}

	cur.mu.Lock()
	res := cur.result
	cur.result = nil
	cur.mu.Unlock()

	if res == nil || cur.conn.closed.Load() {
		// Соединение закрыто - ресурсы результата уже освобождены драйвером
		return nil
	}

	_, err := cur.conn.run(context.Background(), func(driver.Conn) (any, error) {
		return nil, res.Close()
	})
	return err
}
