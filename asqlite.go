// Package asqlite - асинхронный фасад над блокирующим embedded SQLite
// драйвером. Все блокирующие вызовы одного соединения выполняются на
// единственной выделенной горутине-воркере строго в порядке постановки,
// поэтому произвольное число конкурентных вызывающих горутин может
// работать с одним соединением, не нарушая однопоточных инвариантов
// нативного драйвера.
//
// # Быстрый старт
//
//	ctx := context.Background()
//	conn, err := asqlite.Connect(ctx, "app.db")
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	cur, err := conn.Execute(ctx, "SELECT id, name FROM users WHERE id = ?", 1)
//	if err != nil {
//		return err
//	}
//	row, err := cur.FetchOne(ctx)
//
// # Транзакции
//
// Границы транзакций выражаются только через Transaction/Begin;
// прямые Commit/Rollback на соединении намеренно не поддерживаются:
//
//	err = conn.Transaction(ctx, func(ctx context.Context) error {
//		_, err := conn.Execute(ctx, "UPDATE kv SET v = ? WHERE k = ?", "v2", "k")
//		return err
//	})
//
// Чистый выход из функции коммитит транзакцию, ошибка откатывает её.
package asqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"asqlite/driver"
)

// TxLockMode определяет режим блокировки транзакций SQLite
type TxLockMode string

const (
	// TxLockDeferred - откладывает блокировку до первого чтения/записи (по умолчанию SQLite)
	TxLockDeferred TxLockMode = "DEFERRED"
	// TxLockImmediate - немедленно захватывает RESERVED блокировку для избежания SQLITE_BUSY при записи
	TxLockImmediate TxLockMode = "IMMEDIATE"
	// TxLockExclusive - немедленно захватывает EXCLUSIVE блокировку
	TxLockExclusive TxLockMode = "EXCLUSIVE"
)

// Options содержит настройки соединения.
type Options struct {
	// Driver - нативный драйвер (по умолчанию driver.SQLite)
	Driver driver.Driver
	// QueueSize - размер буфера очереди диспетчера (по умолчанию 100)
	QueueSize int
	// RowFactory - стратегия представления строк результата
	RowFactory RowFactory
	// TxLockMode - режим блокировки для новых транзакций
	TxLockMode TxLockMode
	// BusyTimeout - таймаут ожидания при SQLITE_BUSY
	BusyTimeout time.Duration
	// ForeignKeys - включить ли проверку внешних ключей
	ForeignKeys bool
	// WALMode - использовать ли WAL режим журнала
	WALMode bool
	// AccessMode - режим доступа к базе данных
	AccessMode driver.AccessMode
	// Logger - структурный логгер (по умолчанию вывод отключен)
	Logger *slog.Logger
}

// DefaultOptions возвращает настройки по умолчанию, оптимизированные
// для embedded использования.
func DefaultOptions() Options {
	return Options{
		QueueSize:   100,
		RowFactory:  RowFactoryTuple,
		TxLockMode:  TxLockDeferred,
		BusyTimeout: 5 * time.Second,
		ForeignKeys: true,
		WALMode:     true,
		AccessMode:  driver.AccessModeReadWrite,
	}
}

// Connect открывает соединение с базой данных с настройками по умолчанию.
func Connect(ctx context.Context, path string) (*Conn, error) {
	return ConnectWithOptions(ctx, path, DefaultOptions())
}

// ConnectWithOptions открывает соединение с заданными настройками.
// До открытия чего-либо проверяется режим потокобезопасности драйвера:
// драйвер, собранный без поддержки многопоточности, использовать нельзя.
func ConnectWithOptions(ctx context.Context, path string, opts Options) (*Conn, error) {
	drv := opts.Driver
	if drv == nil {
		drv = driver.SQLite{}
	}

	if mode := drv.ThreadSafety(); mode == driver.ThreadSafetySingle {
		return nil, fmt.Errorf("%w: driver reports %s mode", ErrNotThreadSafe, mode)
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	lockMode := opts.TxLockMode
	if lockMode == "" {
		lockMode = TxLockDeferred
	}

	disp := newDispatcher(opts.QueueSize, log)
	c := &Conn{
		disp:     disp,
		log:      log,
		factory:  opts.RowFactory,
		lockMode: lockMode,
	}

	// Open выполняется на воркере: для драйверов с привязкой к потоку
	// соединение должно открыться на том же потоке, где будет работать
	dopts := driverOptions(opts)
	_, err := disp.submit(ctx, func() (any, error) {
		dc, err := drv.Open(ctx, path, dopts)
		if err != nil {
			return nil, err
		}
		disp.setConn(dc)
		return nil, nil
	})
	if err != nil {
		// Останавливаем воркер. Если ожидание Connect было отменено уже
		// после фактического открытия, закрывающий элемент закроет соединение.
		_ = disp.shutdown(context.Background(), func() (any, error) {
			if dc := disp.driverConn(); dc != nil {
				return nil, dc.Close()
			}
			return nil, nil
		})
		return nil, err
	}

	log.Info("database connection open", "path", path)
	return c, nil
}

// driverOptions переводит настройки фасада в настройки драйвера.
func driverOptions(opts Options) driver.Options {
	d := driver.DefaultOptions()
	d.BusyTimeout = opts.BusyTimeout
	d.ForeignKeys = opts.ForeignKeys
	d.WALMode = opts.WALMode
	if opts.AccessMode != "" {
		d.AccessMode = opts.AccessMode
	}
	return d
}
