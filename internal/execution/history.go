// Package execution turns strategy signals into orders, either against the
// live exchange or synthesized locally, and tracks order lifecycle and
// history.
package execution

import (
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

// HistoryStore is the append-only order history backed by duckdb. An order
// id can appear in more than one row across retries; status updates rewrite
// every row sharing the id.
type HistoryStore struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

// NewHistoryStore opens the history database. An empty path keeps the
// history in memory.
func NewHistoryStore(path string) (*HistoryStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeHistoryFailed, err, "failed to open history database %s", path)
	}

	store := &HistoryStore{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := store.initialize(); err != nil {
		return nil, err
	}

	return store, nil
}

func (h *HistoryStore) initialize() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT,
			market TEXT,
			side TEXT,
			price DOUBLE,
			volume DOUBLE,
			amount DOUBLE,
			mode TEXT,
			status TEXT,
			reason TEXT,
			error TEXT,
			created_at TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeHistoryFailed, "failed to create orders table", err)
	}

	return nil
}

// Append adds one record to the history.
func (h *HistoryStore) Append(order types.Order) error {
	_, err := h.sq.
		Insert("orders").
		Columns("id", "market", "side", "price", "volume", "amount", "mode", "status", "reason", "error", "created_at").
		Values(order.ID, order.Market, string(order.Side), order.Price, order.Volume, order.Amount,
			string(order.Mode), string(order.Status), order.Reason, order.Error, order.CreatedAt).
		RunWith(h.db).
		Exec()
	if err != nil {
		return errors.Wrapf(errors.ErrCodeHistoryFailed, err, "failed to record order %s", order.ID)
	}

	return nil
}

// UpdateStatus rewrites the status of every record with the given order id
// and returns how many records were touched.
func (h *HistoryStore) UpdateStatus(id string, status types.OrderStatus) (int64, error) {
	result, err := h.sq.
		Update("orders").
		Set("status", string(status)).
		Where(squirrel.Eq{"id": id}).
		RunWith(h.db).
		Exec()
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeHistoryFailed, err, "failed to update status of order %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeHistoryFailed, err, "failed to count updates of order %s", id)
	}

	return affected, nil
}

// Latest returns the most recent record for an order id.
func (h *HistoryStore) Latest(id string) (types.Order, error) {
	rows, err := h.selectOrders(h.sq.
		Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"id": id}).
		OrderBy("created_at DESC").
		Limit(1))
	if err != nil {
		return types.Order{}, err
	}

	if len(rows) == 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeOrderNotFound, "order %s not found", id)
	}

	return rows[0], nil
}

// List returns up to limit records, newest first. A non-positive limit
// returns the full history.
func (h *HistoryStore) List(limit int) ([]types.Order, error) {
	query := h.sq.
		Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	return h.selectOrders(query)
}

// Close releases the underlying database.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}

var orderColumns = []string{"id", "market", "side", "price", "volume", "amount", "mode", "status", "reason", "error", "created_at"}

func (h *HistoryStore) selectOrders(query squirrel.SelectBuilder) ([]types.Order, error) {
	rows, err := query.RunWith(h.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to query order history", err)
	}
	defer rows.Close()

	var orders []types.Order

	for rows.Next() {
		var order types.Order
		if err := rows.Scan(&order.ID, &order.Market, &order.Side, &order.Price, &order.Volume, &order.Amount,
			&order.Mode, &order.Status, &order.Reason, &order.Error, &order.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to scan order row", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to iterate order history", err)
	}

	return orders, nil
}
