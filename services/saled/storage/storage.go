package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	sale "tokensale/native/sale"
)

// Storage wraps the saled persistence layer. It backs the cap ledger through
// the KV interface so accepted totals survive restarts, and keeps the purchase
// history, event journal and feed samples in typed tables alongside.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("saled storage path must be configured")

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Storage, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// KVPut persists an rlp-encoded value under the supplied key.
func (s *Storage) KVPut(key []byte, value interface{}) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode kv value: %w", err)
	}
	_, err = s.db.Exec(`
        INSERT INTO kv(key, value) VALUES(?, ?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value
    `, string(key), encoded)
	if err != nil {
		return fmt.Errorf("put kv: %w", err)
	}
	return nil
}

// KVGet loads and decodes the value stored under the key.
func (s *Storage) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, string(key))
	var encoded []byte
	if err := row.Scan(&encoded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get kv: %w", err)
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("decode kv value: %w", err)
	}
	return true, nil
}

// PurchaseRecord captures one committed purchase row.
type PurchaseRecord struct {
	ID          string
	Participant string
	Asset       string
	AmountIn    string
	USDValue    string
	TokensOut   string
	CreatedAt   time.Time
}

// RecordPurchase persists a committed receipt and returns its assigned id.
func (s *Storage) RecordPurchase(ctx context.Context, receipt *sale.Receipt) (string, error) {
	if s == nil {
		return "", fmt.Errorf("storage not configured")
	}
	if receipt == nil {
		return "", fmt.Errorf("receipt required")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO purchases(id, participant, asset, amount_in, usd_value, tokens_out, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)
    `, id, receipt.Participant.Hex(), receipt.Asset, receipt.AmountIn.String(), receipt.USDValue.String(), receipt.TokensOut.String(), receipt.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert purchase: %w", err)
	}
	return id, nil
}

// ListPurchases returns the most recent purchases for the participant, newest
// first. An empty participant returns purchases across all wallets.
func (s *Storage) ListPurchases(ctx context.Context, participant string, limit int) ([]PurchaseRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
        SELECT id, participant, asset, amount_in, usd_value, tokens_out, created_at
        FROM purchases
    `
	args := []interface{}{}
	if strings.TrimSpace(participant) != "" {
		query += ` WHERE participant = ?`
		args = append(args, strings.TrimSpace(participant))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()
	var records []PurchaseRecord
	for rows.Next() {
		var rec PurchaseRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Participant, &rec.Asset, &rec.AmountIn, &rec.USDValue, &rec.TokensOut, &createdAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return records, nil
}

// Payment directions. Every custody movement is one of the two.
const (
	PaymentCollected = "collect"
	PaymentRefunded  = "refund"
)

// PaymentRecord is one custody movement, either a collection or a refund.
type PaymentRecord struct {
	ID          int64
	Participant string
	Asset       string
	Amount      string
	Direction   string
	RecordedAt  time.Time
}

// RecordPayment persists a collected incoming payment.
func (s *Storage) RecordPayment(ctx context.Context, participant, asset string, amount *big.Int, when time.Time) error {
	return s.recordPayment(ctx, participant, asset, amount, PaymentCollected, when)
}

// RecordRefund persists the compensation for a payment whose purchase did not
// commit, keeping the custody trail balanced.
func (s *Storage) RecordRefund(ctx context.Context, participant, asset string, amount *big.Int, when time.Time) error {
	return s.recordPayment(ctx, participant, asset, amount, PaymentRefunded, when)
}

func (s *Storage) recordPayment(ctx context.Context, participant, asset string, amount *big.Int, direction string, when time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if amount == nil {
		return fmt.Errorf("amount required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO payments(participant, asset, amount, direction, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, strings.TrimSpace(participant), strings.ToUpper(strings.TrimSpace(asset)), amount.String(), direction, when.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// ListPayments returns custody movements for the participant in insertion
// order. An empty participant returns movements across all wallets.
func (s *Storage) ListPayments(ctx context.Context, participant string) ([]PaymentRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	query := `
        SELECT id, participant, asset, amount, direction, recorded_at
        FROM payments
    `
	args := []interface{}{}
	if strings.TrimSpace(participant) != "" {
		query += ` WHERE participant = ?`
		args = append(args, strings.TrimSpace(participant))
	}
	query += ` ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()
	var records []PaymentRecord
	for rows.Next() {
		var rec PaymentRecord
		var recordedAt int64
		if err := rows.Scan(&rec.ID, &rec.Participant, &rec.Asset, &rec.Amount, &rec.Direction, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		rec.RecordedAt = time.Unix(recordedAt, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return records, nil
}

// EventRecord is one row of the append-only event journal.
type EventRecord struct {
	ID         int64
	Kind       string
	Payload    string
	RecordedAt time.Time
}

// AppendEvent writes to the append-only journal. Journal rows are never
// updated or deleted.
func (s *Storage) AppendEvent(ctx context.Context, kind, payload string, when time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO events(kind, payload, recorded_at)
        VALUES(?, ?, ?)
    `, strings.TrimSpace(kind), payload, when.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns journal entries in insertion order.
func (s *Storage) ListEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, kind, payload, recorded_at
        FROM events
        ORDER BY id ASC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var records []EventRecord
	for rows.Next() {
		var rec EventRecord
		var recordedAt int64
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.RecordedAt = time.Unix(recordedAt, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// RecordFeedSample persists a raw oracle observation for audit.
func (s *Storage) RecordFeedSample(ctx context.Context, symbol string, reading sale.Reading, recorded time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if reading.Price == nil {
		return fmt.Errorf("reading missing price")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO feed_samples(symbol, price, decimals, observed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, strings.ToUpper(strings.TrimSpace(symbol)), reading.Price.String(), reading.Decimals, reading.UpdatedAt.UTC().Unix(), recorded.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert feed sample: %w", err)
	}
	return nil
}

// LatestFeedSample returns the most recent persisted observation for the symbol.
func (s *Storage) LatestFeedSample(ctx context.Context, symbol string) (sale.Reading, bool, error) {
	if s == nil {
		return sale.Reading{}, false, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT price, decimals, observed_at
        FROM feed_samples
        WHERE symbol = ?
        ORDER BY id DESC
        LIMIT 1
    `, strings.ToUpper(strings.TrimSpace(symbol)))
	var priceStr string
	var decimals uint8
	var observedAt int64
	if err := row.Scan(&priceStr, &decimals, &observedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sale.Reading{}, false, nil
		}
		return sale.Reading{}, false, fmt.Errorf("query feed sample: %w", err)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(priceStr), 10)
	if !ok {
		return sale.Reading{}, false, fmt.Errorf("parse feed price %q", priceStr)
	}
	return sale.Reading{Price: price, Decimals: decimals, UpdatedAt: time.Unix(observedAt, 0).UTC()}, true, nil
}

// TreasuryBalance captures the persisted soft inventory of output tokens.
type TreasuryBalance struct {
	Available *big.Int
	Delivered *big.Int
}

// SaveTreasury upserts the treasury balances.
func (s *Storage) SaveTreasury(ctx context.Context, balance TreasuryBalance) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	available := "0"
	if balance.Available != nil {
		available = balance.Available.String()
	}
	delivered := "0"
	if balance.Delivered != nil {
		delivered = balance.Delivered.String()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO treasury(id, available, delivered, updated_at)
        VALUES(1, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            available=excluded.available,
            delivered=excluded.delivered,
            updated_at=excluded.updated_at
    `, available, delivered, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("save treasury: %w", err)
	}
	return nil
}

// LoadTreasury returns the persisted treasury balances if present.
func (s *Storage) LoadTreasury(ctx context.Context) (TreasuryBalance, bool, error) {
	if s == nil {
		return TreasuryBalance{}, false, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `SELECT available, delivered FROM treasury WHERE id = 1`)
	var availableStr, deliveredStr string
	if err := row.Scan(&availableStr, &deliveredStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TreasuryBalance{}, false, nil
		}
		return TreasuryBalance{}, false, fmt.Errorf("query treasury: %w", err)
	}
	available, ok := new(big.Int).SetString(strings.TrimSpace(availableStr), 10)
	if !ok {
		return TreasuryBalance{}, false, fmt.Errorf("parse treasury available %q", availableStr)
	}
	delivered, ok := new(big.Int).SetString(strings.TrimSpace(deliveredStr), 10)
	if !ok {
		return TreasuryBalance{}, false, fmt.Errorf("parse treasury delivered %q", deliveredStr)
	}
	return TreasuryBalance{Available: available, Delivered: delivered}, true, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS purchases (
    id TEXT PRIMARY KEY,
    participant TEXT NOT NULL,
    asset TEXT NOT NULL,
    amount_in TEXT NOT NULL,
    usd_value TEXT NOT NULL,
    tokens_out TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_purchases_participant ON purchases(participant, created_at);

CREATE TABLE IF NOT EXISTS payments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    participant TEXT NOT NULL,
    asset TEXT NOT NULL,
    amount TEXT NOT NULL,
    direction TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_participant ON payments(participant, recorded_at);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    payload TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS feed_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    price TEXT NOT NULL,
    decimals INTEGER NOT NULL,
    observed_at INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feed_samples_symbol ON feed_samples(symbol, observed_at);

CREATE TABLE IF NOT EXISTS treasury (
    id INTEGER PRIMARY KEY,
    available TEXT NOT NULL,
    delivered TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`
