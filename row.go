package asqlite

import (
	"fmt"
	"slices"
)

// RowFactory определяет стратегию представления строки результата.
// Набор стратегий закрытый: позиционный кортеж или кортеж с доступом
// по имени колонки.
type RowFactory int

const (
	// RowFactoryTuple - только позиционный доступ к значениям (по умолчанию)
	RowFactoryTuple RowFactory = iota
	// RowFactoryNamed - позиционный доступ плюс доступ по имени колонки
	RowFactoryNamed
)

// String возвращает строковое представление стратегии.
func (f RowFactory) String() string {
	switch f {
	case RowFactoryTuple:
		return "tuple"
	case RowFactoryNamed:
		return "named"
	default:
		return "unknown"
	}
}

// Row - одна строка результата в порядке выборки.
type Row struct {
	values  []any
	columns []string // nil для RowFactoryTuple
}

// newRow строит строку согласно выбранной стратегии.
func newRow(factory RowFactory, columns []string, values []any) *Row {
	r := &Row{values: values}
	if factory == RowFactoryNamed {
		r.columns = columns
	}
	return r
}

// Len возвращает число колонок в строке.
func (r *Row) Len() int { return len(r.values) }

// Index возвращает значение колонки по позиции.
func (r *Row) Index(i int) any { return r.values[i] }

// Values возвращает копию значений всех колонок в порядке выборки.
// Изменение возвращённого среза не затрагивает строку.
func (r *Row) Values() []any { return slices.Clone(r.values) }

// Columns возвращает имена колонок (nil для позиционной стратегии).
func (r *Row) Columns() []string { return r.columns }

// Column возвращает значение колонки по имени.
// Для строк позиционной стратегии возвращает ErrNoColumnNames.
func (r *Row) Column(name string) (any, error) {
	if r.columns == nil {
		return nil, ErrNoColumnNames
	}
	for i, c := range r.columns {
		if c == name {
			return r.values[i], nil
		}
	}
	return nil, fmt.Errorf("asqlite: no such column %q", name)
}
