package asqlite

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"asqlite/driver"
)

// workItem представляет одну единицу отложенного выполнения в очереди
// диспетчера вместе с каналом доставки результата вызывающей стороне.
type workItem struct {
	ctx      context.Context
	fn       func() (any, error)
	reply    chan workResult
	terminal bool // закрывающий элемент: после него воркер завершается
}

// workResult - результат или ошибка выполненной единицы работы.
type workResult struct {
	value any
	err   error
}

// dispatcher сериализует все блокирующие вызовы драйвера для одного
// соединения на единственной выделенной горутине-воркере.
// Порядок выполнения строго совпадает с порядком постановки в очередь.
type dispatcher struct {
	queue chan workItem
	done  chan struct{}
	log   *slog.Logger

	// mu защищает closed на стороне отправителей;
	// closedFlag дублирует его для чтения воркером без блокировки
	mu         sync.Mutex
	closed     bool
	closedFlag atomic.Bool

	connMu sync.Mutex
	conn   driver.Conn
}

// newDispatcher создает диспетчер и запускает его воркер.
func newDispatcher(queueSize int, log *slog.Logger) *dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &dispatcher{
		queue: make(chan workItem, queueSize),
		done:  make(chan struct{}),
		log:   log,
	}
	go d.worker()
	return d
}

// worker выполняет единицы работы строго в порядке постановки.
// Горутина закрепляется за OS-потоком на всё время жизни соединения:
// нативные драйверы с привязкой к потоку требуют, чтобы все вызовы
// приходили с одного и того же потока.
func (d *dispatcher) worker() {
	runtime.LockOSThread()
	defer close(d.done)

	for item := range d.queue {
		switch {
		case item.terminal:
			// Закрывающий элемент выполняется всегда
			value, err := item.fn()
			item.reply <- workResult{value: value, err: err}
			return
		case d.closedFlag.Load():
			// Соединение закрыто: поставленная ранее работа
			// завершается ошибкой, а не выполняется
			item.reply <- workResult{err: ErrConnClosed}
		case item.ctx.Err() != nil:
			// Вызывающая сторона отменила ожидание до начала
			// выполнения - снимаем работу без побочных эффектов
			item.reply <- workResult{err: item.ctx.Err()}
		default:
			value, err := item.fn()
			item.reply <- workResult{value: value, err: err}
		}
	}
}

// submit ставит работу в хвост очереди и ожидает её результат.
// Возвращает ErrConnClosed если диспетчер уже остановлен.
func (d *dispatcher) submit(ctx context.Context, fn func() (any, error)) (any, error) {
	return d.enqueue(ctx, fn, false)
}

// shutdown останавливает диспетчер: новые submit завершаются ошибкой,
// уже поставленная работа получает ErrConnClosed, после чего воркер
// выполняет fn (закрытие драйвера) и завершается.
func (d *dispatcher) shutdown(ctx context.Context, fn func() (any, error)) error {
	_, err := d.enqueue(ctx, fn, true)
	return err
}

func (d *dispatcher) enqueue(ctx context.Context, fn func() (any, error), terminal bool) (any, error) {
	item := workItem{
		ctx: ctx,
		fn:  fn,
		// буфер на один результат: воркер не блокируется,
		// даже если вызывающая сторона уже отменила ожидание
		reply:    make(chan workResult, 1),
		terminal: terminal,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrConnClosed
	}
	if terminal {
		d.closed = true
		d.closedFlag.Store(true)
	}
	// Отправка под мьютексом: после закрытия ни одна работа
	// не может оказаться в очереди позади закрывающего элемента
	d.queue <- item
	d.mu.Unlock()

	select {
	case res := <-item.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// setConn сохраняет открытое соединение драйвера.
// Вызывается воркером из закрытия, поставленного Connect.
func (d *dispatcher) setConn(c driver.Conn) {
	d.connMu.Lock()
	d.conn = c
	d.connMu.Unlock()
}

// driverConn возвращает соединение драйвера (nil до завершения Open).
func (d *dispatcher) driverConn() driver.Conn {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	return d.conn
}

// interrupt пробрасывает прерывание нативному драйверу.
// Выполняется на горутине вызывающей стороны: у SQLite прерывание
// специально рассчитано на вызов из другого потока.
func (d *dispatcher) interrupt() {
	if c := d.driverConn(); c != nil {
		c.Interrupt()
	}
}
