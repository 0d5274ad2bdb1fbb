package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store and RowReader. Fault injection fields
// let tests force the failure paths.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]*memoryTable
	closed bool

	// FailOpen, when set, is returned by OpenTable and CreateTable.
	FailOpen error
	// FailAppends, when set, is returned by AppendRow and no row is stored.
	FailAppends error
}

type memoryTable struct {
	header []string
	rows   [][]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memoryTable)}
}

func (m *MemoryStore) OpenTable(ctx context.Context, name string) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailOpen != nil {
		return Table{}, m.FailOpen
	}
	t, ok := m.tables[name]
	if !ok {
		return Table{}, ErrTableNotFound
	}
	return Table{Name: name, Header: cloneCells(t.header)}, nil
}

func (m *MemoryStore) CreateTable(ctx context.Context, name string, header []string) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailOpen != nil {
		return Table{}, m.FailOpen
	}
	if _, ok := m.tables[name]; ok {
		return Table{}, ErrTableExists
	}
	m.tables[name] = &memoryTable{header: cloneCells(header)}
	return Table{Name: name, Header: cloneCells(header)}, nil
}

func (m *MemoryStore) AppendRow(ctx context.Context, table Table, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("memory store is closed")
	}
	if m.FailAppends != nil {
		return m.FailAppends
	}
	t, ok := m.tables[table.Name]
	if !ok {
		return ErrTableNotFound
	}
	t.rows = append(t.rows, cloneCells(values))
	return nil
}

func (m *MemoryStore) ReadRows(ctx context.Context, table Table) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table.Name]
	if !ok {
		return nil, ErrTableNotFound
	}
	out := make([][]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = cloneCells(row)
	}
	return out, nil
}

// Rows is a context-free ReadRows for assertions.
func (m *MemoryStore) Rows(name string) [][]string {
	rows, err := m.ReadRows(context.Background(), Table{Name: name})
	if err != nil {
		return nil
	}
	return rows
}

// SetFailAppends swaps the append fault under the store lock.
func (m *MemoryStore) SetFailAppends(err error) {
	m.mu.Lock()
	m.FailAppends = err
	m.mu.Unlock()
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func cloneCells(cells []string) []string {
	out := make([]string, len(cells))
	copy(out, cells)
	return out
}
