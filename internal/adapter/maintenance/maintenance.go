// Package maintenance периодически обслуживает базу данных:
// сбрасывает WAL на диск и обновляет статистику планировщика запросов.
// Все операции идут через асинхронное соединение, поэтому обслуживание
// никогда не конкурирует с обычными запросами за драйвер.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"asqlite"
)

// Runner управляет периодическими задачами обслуживания базы.
type Runner struct {
	cron   *cron.Cron
	conn   *asqlite.Conn
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger адаптер для интеграции cron logger с slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, _ := keysAndValues[i].(string)
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2+1)
	attrs = append(attrs, slog.Any("error", err))
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, _ := keysAndValues[i].(string)
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// New создает Runner для указанного соединения.
func New(conn *asqlite.Conn, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	cl := cronLogger{logger: logger.With("component", "cron")}
	return &Runner{
		cron:   cron.New(cron.WithLogger(cl)),
		conn:   conn,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule регистрирует задачу checkpoint по cron-расписанию.
// Примеры расписаний: "@every 15m", "@hourly", "30 3 * * *".
// Перекрывающиеся запуски пропускаются.
func (r *Runner) Schedule(schedule string) error {
	cl := cronLogger{logger: r.logger.With("job", "checkpoint")}
	job := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		if err := r.Checkpoint(r.ctx); err != nil {
			r.logger.Error("checkpoint failed", "error", err)
		}
	}))

	if _, err := r.cron.AddJob(schedule, job); err != nil {
		return fmt.Errorf("schedule checkpoint %q: %w", schedule, err)
	}

	r.logger.Info("checkpoint scheduled", "schedule", schedule)
	return nil
}

// Checkpoint сбрасывает WAL в основной файл базы и обновляет
// статистику планировщика. Безопасен для баз без WAL: SQLite
// просто вернет пустой результат.
func (r *Runner) Checkpoint(ctx context.Context) error {
	start := time.Now()

	cur, err := r.conn.Execute(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	row, err := cur.FetchOne(ctx)
	if err != nil {
		return fmt.Errorf("wal checkpoint result: %w", err)
	}

	if _, err := r.conn.Execute(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	attrs := []any{"duration", time.Since(start)}
	if row != nil && row.Len() == 3 {
		// busy, log, checkpointed
		attrs = append(attrs, "busy", row.Index(0), "wal_frames", row.Index(1), "checkpointed", row.Index(2))
	}
	r.logger.Info("checkpoint completed", attrs...)
	return nil
}

// Start запускает планировщик обслуживания.
func (r *Runner) Start() {
	r.logger.Info("starting maintenance runner")
	r.cron.Start()
}

// Stop останавливает планировщик и ждет завершения текущей задачи.
func (r *Runner) Stop() {
	r.logger.Info("stopping maintenance runner")
	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("maintenance runner stopped")
}
