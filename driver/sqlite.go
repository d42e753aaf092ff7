package driver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite драйвер
)

// SQLite - реализация Driver на основе modernc.org/sqlite.
// Соединение закрепляется за одним *sql.Conn, поэтому все вызовы
// должны быть строго сериализованы вызывающей стороной.
type SQLite struct{}

// Убедимся на этапе компиляции, что типы реализуют интерфейсы
var (
	_ Driver    = SQLite{}
	_ Conn      = (*sqliteConn)(nil)
	_ ResultSet = (*bufferedResultSet)(nil)
)

// ThreadSafety сообщает режим потокобезопасности.
// modernc.org/sqlite собирает SQLite с SQLITE_THREADSAFE=1 (serialized).
func (SQLite) ThreadSafety() ThreadSafety {
	return ThreadSafetySerialized
}

// Open открывает соединение с базой данных и применяет PRAGMA настройки.
func (SQLite) Open(ctx context.Context, path string, opts Options) (Conn, error) {
	// Создаем директорию для БД если её нет
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Ровно одно физическое соединение: фасад сериализует доступ сам,
	// а пул из нескольких соединений сломал бы видимость транзакций
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx := ctx
	if opts.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	// Закрепляем единственное соединение
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to pin sqlite connection: %w", err)
	}

	c := &sqliteConn{db: db, conn: conn}
	if err := c.applyPragmaSettings(ctx, opts); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to apply PRAGMA settings: %w", err)
	}

	return c, nil
}

// buildDSN строит DSN строку с минимальными параметрами.
// Все настройки применяются через PRAGMA после открытия,
// через DSN передаётся только режим доступа.
func buildDSN(path string, opts Options) string {
	if path == ":memory:" {
		return path
	}
	if opts.AccessMode != "" && opts.AccessMode != AccessModeReadWrite {
		return path + "?mode=" + string(opts.AccessMode)
	}
	return path
}

// sqliteConn - одно закреплённое соединение с базой.
type sqliteConn struct {
	db   *sql.DB
	conn *sql.Conn

	// mu защищает cancel текущего запроса для Interrupt
	mu     sync.Mutex
	cancel context.CancelFunc
}

// applyPragmaSettings применяет PRAGMA настройки к закреплённому соединению.
func (c *sqliteConn) applyPragmaSettings(ctx context.Context, opts Options) error {
	pragmas := make([]string, 0, 4)

	if opts.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()))
	}

	for _, pragma := range pragmas {
		if _, err := c.conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// track регистрирует выполняющийся запрос, чтобы Interrupt мог его отменить.
// Возвращённую функцию нужно вызвать по завершении запроса.
func (c *sqliteConn) track(ctx context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	return runCtx, func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}
}

// Interrupt прерывает выполняющийся сейчас запрос через отмену его контекста.
// modernc.org/sqlite транслирует отмену контекста в sqlite3_interrupt.
// Безопасен для вызова из другой горутины; если запрос не выполняется - no-op.
func (c *sqliteConn) Interrupt() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
}

// returnsRows определяет, возвращает ли оператор строки.
// Первого ключевого слова недостаточно: DML с RETURNING возвращает строки,
// а WITH может предварять как выборку, так и DML.
func returnsRows(query string) bool {
	verb, returning := scanStatement(query)
	if returning {
		return true
	}
	switch verb {
	case "SELECT", "VALUES", "PRAGMA", "EXPLAIN":
		return true
	}
	return false
}

// scanStatement выделяет главный глагол оператора и признак RETURNING.
// Строковые литералы, экранированные идентификаторы и комментарии
// пропускаются. Тела CTE стоят внутри скобок, поэтому главный глагол
// оператора WITH - первое ключевое слово нулевой глубины вложенности
// после определений CTE; RETURNING верхнего уровня DML тоже стоит
// на нулевой глубине.
func scanStatement(query string) (verb string, returning bool) {
	depth := 0
	n := len(query)
	for i := 0; i < n; {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			// строка или экранированный идентификатор; кавычка
			// внутри экранируется удвоением
			q := c
			i++
			for i < n {
				if query[i] == q {
					if i+1 < n && query[i+1] == q {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
		case c == '[':
			for i < n && query[i] != ']' {
				i++
			}
			i++
		case c == '-' && i+1 < n && query[i+1] == '-':
			for i < n && query[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && query[i+1] == '*':
			i += 2
			for i+1 < n && !(query[i] == '*' && query[i+1] == '/') {
				i++
			}
			i += 2
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case isWordByte(c):
			start := i
			for i < n && isWordByte(query[i]) {
				i++
			}
			if depth != 0 {
				continue
			}
			switch word := strings.ToUpper(query[start:i]); word {
			case "SELECT", "VALUES", "PRAGMA", "EXPLAIN",
				"INSERT", "UPDATE", "DELETE", "REPLACE":
				if verb == "" {
					verb = word
				}
			case "RETURNING":
				returning = true
			}
		default:
			i++
		}
	}
	return verb, returning
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_'
}

// Execute выполняет один SQL-оператор.
// Результат выборки полностью материализуется: на единственном закреплённом
// соединении открытый *sql.Rows блокировал бы последующие операторы.
func (c *sqliteConn) Execute(ctx context.Context, query string, args []any) (ResultSet, error) {
	runCtx, done := c.track(ctx)
	defer done()

	if returnsRows(query) {
		rows, err := c.conn.QueryContext(runCtx, query, args...)
		if err != nil {
			return nil, err
		}
		return bufferRows(rows)
	}

	res, err := c.conn.ExecContext(runCtx, query, args...)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return &bufferedResultSet{rowsAffected: affected, lastInsertID: lastID}, nil
}

// ExecuteMany выполняет оператор для каждого набора параметров,
// подготовив его один раз.
func (c *sqliteConn) ExecuteMany(ctx context.Context, query string, argSets [][]any) (ResultSet, error) {
	runCtx, done := c.track(ctx)
	defer done()

	stmt, err := c.conn.PrepareContext(runCtx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stmt.Close() }()

	var affected, lastID int64
	lastID = -1
	for _, args := range argSets {
		res, err := stmt.ExecContext(runCtx, args...)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
		if id, err := res.LastInsertId(); err == nil {
			lastID = id
		}
	}

	return &bufferedResultSet{rowsAffected: affected, lastInsertID: lastID}, nil
}

// ExecuteScript выполняет скрипт из нескольких операторов.
// modernc.org/sqlite выполняет все операторы одним Exec, если нет параметров.
func (c *sqliteConn) ExecuteScript(ctx context.Context, script string) error {
	runCtx, done := c.track(ctx)
	defer done()

	_, err := c.conn.ExecContext(runCtx, script)
	return err
}

// Close закрывает закреплённое соединение и сам пул.
func (c *sqliteConn) Close() error {
	c.Interrupt()
	connErr := c.conn.Close()
	dbErr := c.db.Close()
	if connErr != nil {
		return connErr
	}
	return dbErr
}

// bufferedResultSet - материализованный в память результат оператора.
type bufferedResultSet struct {
	columns      []string
	rows         [][]any
	pos          int
	rowsAffected int64
	lastInsertID int64
	closed       bool
}

// bufferRows вычитывает все строки *sql.Rows в память и закрывает их.
func bufferRows(rows *sql.Rows) (*bufferedResultSet, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var buffered [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		buffered = append(buffered, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &bufferedResultSet{
		columns:      columns,
		rows:         buffered,
		rowsAffected: -1,
		lastInsertID: -1,
	}, nil
}

// Columns возвращает имена колонок результата.
func (rs *bufferedResultSet) Columns() []string { return rs.columns }

// Next возвращает значения следующей строки, (nil, nil) по исчерпанию.
func (rs *bufferedResultSet) Next() ([]any, error) {
	if rs.closed {
		return nil, fmt.Errorf("result set is closed")
	}
	if rs.pos >= len(rs.rows) {
		return nil, nil
	}
	row := rs.rows[rs.pos]
	rs.pos++
	return row, nil
}

// RowsAffected возвращает число изменённых строк.
func (rs *bufferedResultSet) RowsAffected() int64 { return rs.rowsAffected }

// LastInsertID возвращает rowid последней вставленной строки.
func (rs *bufferedResultSet) LastInsertID() int64 { return rs.lastInsertID }

// Close отмечает результат закрытым и освобождает буфер.
func (rs *bufferedResultSet) Close() error {
	rs.closed = true
	rs.rows = nil
	return nil
}
