// Package driver определяет интерфейс нативного блокирующего SQLite-драйвера,
// который оборачивает асинхронный фасад, и содержит его реализацию
// на основе modernc.org/sqlite.
//
// Все методы Conn блокирующие и небезопасны для конкурентного вызова:
// фасад обязан сериализовать обращения к одному Conn (это делает его
// диспетчер). Interrupt — единственный метод, который можно вызывать
// из другой горутины во время выполнения запроса.
package driver

import (
	"context"
	"time"
)

// ThreadSafety описывает режим потокобезопасности, который декларирует драйвер.
type ThreadSafety int

const (
	// ThreadSafetySingle - драйвер собран без поддержки многопоточности,
	// использовать его из-под диспетчера нельзя
	ThreadSafetySingle ThreadSafety = iota
	// ThreadSafetyMulti - соединения нельзя разделять между потоками,
	// но разные соединения независимы
	ThreadSafetyMulti
	// ThreadSafetySerialized - драйвер сериализует доступ самостоятельно
	ThreadSafetySerialized
)

// String возвращает строковое представление режима.
func (t ThreadSafety) String() string {
	switch t {
	case ThreadSafetySingle:
		return "single-thread"
	case ThreadSafetyMulti:
		return "multi-thread"
	case ThreadSafetySerialized:
		return "serialized"
	default:
		return "unknown"
	}
}

// AccessMode определяет режим доступа к базе данных
type AccessMode string

const (
	// AccessModeReadWrite - режим чтения и записи (по умолчанию)
	AccessModeReadWrite AccessMode = "rw"
	// AccessModeReadOnly - режим только для чтения
	AccessModeReadOnly AccessMode = "ro"
	// AccessModeReadWriteCreate - режим чтения/записи с созданием файла если не существует
	AccessModeReadWriteCreate AccessMode = "rwc"
)

// Options содержит настройки открытия соединения.
type Options struct {
	// BusyTimeout - таймаут ожидания при SQLITE_BUSY
	BusyTimeout time.Duration
	// ForeignKeys - включить ли проверку внешних ключей
	ForeignKeys bool
	// WALMode - использовать ли WAL режим журнала
	WALMode bool
	// AccessMode - режим доступа к базе данных
	AccessMode AccessMode
	// PingTimeout - таймаут проверки соединения при открытии
	PingTimeout time.Duration
}

// DefaultOptions возвращает настройки по умолчанию для embedded использования.
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5 * time.Second,
		ForeignKeys: true,
		WALMode:     true,
		AccessMode:  AccessModeReadWrite,
		PingTimeout: 5 * time.Second,
	}
}

// Driver - фабрика соединений нативного драйвера.
type Driver interface {
	// ThreadSafety сообщает режим потокобезопасности драйвера.
	// Опрашивается один раз перед открытием соединения.
	ThreadSafety() ThreadSafety
	// Open открывает соединение с базой данных по указанному пути.
	Open(ctx context.Context, path string, opts Options) (Conn, error)
}

// Conn - одно блокирующее соединение нативного драйвера.
type Conn interface {
	// Execute выполняет один SQL-оператор со связанными параметрами.
	Execute(ctx context.Context, query string, args []any) (ResultSet, error)
	// ExecuteMany выполняет один SQL-оператор для каждого набора параметров.
	ExecuteMany(ctx context.Context, query string, argSets [][]any) (ResultSet, error)
	// ExecuteScript выполняет скрипт из нескольких SQL-операторов без параметров.
	ExecuteScript(ctx context.Context, script string) error
	// Interrupt прерывает выполняющийся сейчас запрос.
	// Рекомендательный: драйвер может завершить запрос до прерывания.
	Interrupt()
	// Close закрывает соединение.
	Close() error
}

// ResultSet - источник строк результата одного выполненного оператора.
type ResultSet interface {
	// Columns возвращает имена колонок результата (пустой срез для DML).
	Columns() []string
	// Next возвращает значения следующей строки.
	// По исчерпанию результата возвращает (nil, nil).
	Next() ([]any, error)
	// RowsAffected возвращает число изменённых строк (-1 для SELECT).
	RowsAffected() int64
	// LastInsertID возвращает rowid последней вставленной строки (-1 для SELECT).
	LastInsertID() int64
	// Close освобождает ресурсы результата.
	Close() error
}
