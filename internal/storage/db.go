package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"cartpilot/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
  sourceId TEXT NOT NULL,
  id TEXT NOT NULL,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  price REAL NOT NULL,
  rating REAL NOT NULL DEFAULT 0,
  reviewCount INTEGER NOT NULL DEFAULT 0,
  deliveryDays INTEGER NOT NULL DEFAULT 0,
  inStock INTEGER NOT NULL DEFAULT 1,
  image TEXT,
  description TEXT,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(sourceId, id)
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);

CREATE TABLE IF NOT EXISTS goal_requests (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS preferences (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  preferredSource TEXT NOT NULL,
  prioritizeFastShipping INTEGER NOT NULL,
  maxDeliveryDays INTEGER NOT NULL,
  minRating REAL NOT NULL,
  ecoFriendly INTEGER NOT NULL,
  bundleOrders INTEGER NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL UNIQUE,
  requestId INTEGER,
  goal TEXT NOT NULL,
  mode TEXT NOT NULL,
  status TEXT NOT NULL,
  planJson TEXT NOT NULL,
  cartJson TEXT NOT NULL,
  savingsJson TEXT NOT NULL,
  metricsJson TEXT NOT NULL,
  candidatesJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(requestId) REFERENCES goal_requests(id)
);

CREATE TABLE IF NOT EXISTS checkout_orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  sourceId TEXT NOT NULL,
  orderNumber TEXT NOT NULL UNIQUE,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS checkout_progress (
  runId INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  state TEXT NOT NULL,
  progressPct REAL NOT NULL,
  currentSource TEXT,
  completedJson TEXT NOT NULL,
  message TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(runId, seq),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertProducts(ctx context.Context, products []internal.CandidateItem) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO products (
  sourceId, id, name, category, price, rating, reviewCount, deliveryDays, inStock, image, description, lastSeenAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(sourceId, id) DO UPDATE SET
  name=excluded.name,
  category=excluded.category,
  price=excluded.price,
  rating=excluded.rating,
  reviewCount=excluded.reviewCount,
  deliveryDays=excluded.deliveryDays,
  inStock=excluded.inStock,
  image=excluded.image,
  description=excluded.description,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if p.SourceID == "" || p.ID == "" {
			return fmt.Errorf("product without source or id: %q", p.Name)
		}
		if _, err := stmt.ExecContext(ctx,
			p.SourceID, p.ID, p.Name, p.Category, p.Price, p.Rating, p.ReviewCount, p.DeliveryDays,
			boolInt(p.InStock), p.Image, p.Description,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListProducts returns cached products of one source ("" for all) in the
// given categories (none for all), ordered by source then insertion.
func (d *DB) ListProducts(ctx context.Context, source string, categories []string) ([]internal.CandidateItem, error) {
	query := `
SELECT sourceId, id, name, category, price, rating, reviewCount, deliveryDays, inStock, COALESCE(image, ''), COALESCE(description, '')
FROM products WHERE 1=1`
	var args []any
	if source != "" {
		query += ` AND sourceId = ?`
		args = append(args, source)
	}
	if len(categories) > 0 {
		query += ` AND category IN (?` + strings.Repeat(`, ?`, len(categories)-1) + `)`
		for _, c := range categories {
			args = append(args, c)
		}
	}
	query += ` ORDER BY sourceId, rowid`

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CandidateItem
	for rows.Next() {
		var p internal.CandidateItem
		var inStock int
		if err := rows.Scan(&p.SourceID, &p.ID, &p.Name, &p.Category, &p.Price, &p.Rating, &p.ReviewCount, &p.DeliveryDays, &inStock, &p.Image, &p.Description); err != nil {
			return nil, err
		}
		p.InStock = inStock != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) ProductSources(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT DISTINCT sourceId FROM products ORDER BY sourceId`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) UpsertGoalRequest(ctx context.Context, provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.GoalRequestRow, error) {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO goal_requests (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.GoalRequestRow{}, err
	}

	row, err := d.GetGoalRequestByProviderMessageID(ctx, provider, messageID)
	if err != nil {
		return internal.GoalRequestRow{}, err
	}
	if row == nil {
		return internal.GoalRequestRow{}, errors.New("failed to upsert goal request")
	}
	return *row, nil
}

const goalRequestColumns = `id, provider, messageId, COALESCE(subject, ''), COALESCE(sender, ''), COALESCE(receivedAt, ''), hash, status, rawRef`

func scanGoalRequest(scan func(...any) error) (internal.GoalRequestRow, error) {
	var row internal.GoalRequestRow
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetGoalRequestByProviderMessageID(ctx context.Context, provider, messageID string) (*internal.GoalRequestRow, error) {
	row, err := scanGoalRequest(d.conn.QueryRowContext(ctx, `SELECT `+goalRequestColumns+` FROM goal_requests WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetGoalRequestByID(ctx context.Context, id int) (*internal.GoalRequestRow, error) {
	row, err := scanGoalRequest(d.conn.QueryRowContext(ctx, `SELECT `+goalRequestColumns+` FROM goal_requests WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListGoalRequestsByStatus(ctx context.Context, status string, limit int) ([]internal.GoalRequestRow, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+goalRequestColumns+` FROM goal_requests WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.GoalRequestRow
	for rows.Next() {
		row, err := scanGoalRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateGoalRequestStatus(ctx context.Context, id int, status string) error {
	_, err := d.conn.ExecContext(ctx, `UPDATE goal_requests SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

// LoadPreferences returns the saved preferences, or the defaults when none
// have been saved yet.
func (d *DB) LoadPreferences(ctx context.Context) (internal.Preferences, error) {
	var p internal.Preferences
	var fast, eco, bundle int
	err := d.conn.QueryRowContext(ctx, `
SELECT preferredSource, prioritizeFastShipping, maxDeliveryDays, minRating, ecoFriendly, bundleOrders
FROM preferences WHERE id = 1`).Scan(&p.PreferredSource, &fast, &p.MaxDeliveryDays, &p.MinRating, &eco, &bundle)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.DefaultPreferences(), nil
	}
	if err != nil {
		return internal.Preferences{}, err
	}
	p.PrioritizeFastShipping = fast != 0
	p.EcoFriendly = eco != 0
	p.BundleOrders = bundle != 0
	return p, nil
}

func (d *DB) SavePreferences(ctx context.Context, p internal.Preferences) error {
	if strings.TrimSpace(p.PreferredSource) == "" {
		p.PreferredSource = internal.AnySource
	}
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO preferences (id, preferredSource, prioritizeFastShipping, maxDeliveryDays, minRating, ecoFriendly, bundleOrders)
VALUES (1, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  preferredSource=excluded.preferredSource,
  prioritizeFastShipping=excluded.prioritizeFastShipping,
  maxDeliveryDays=excluded.maxDeliveryDays,
  minRating=excluded.minRating,
  ecoFriendly=excluded.ecoFriendly,
  bundleOrders=excluded.bundleOrders,
  updatedAt=CURRENT_TIMESTAMP
`, p.PreferredSource, boolInt(p.PrioritizeFastShipping), p.MaxDeliveryDays, p.MinRating, boolInt(p.EcoFriendly), boolInt(p.BundleOrders))
	return err
}

func (d *DB) InsertRun(ctx context.Context, run internal.RunRecord) (int, error) {
	result, err := d.conn.ExecContext(ctx, `
INSERT INTO runs (traceId, requestId, goal, mode, status, planJson, cartJson, savingsJson, metricsJson, candidatesJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.RequestID, run.Goal, string(run.Mode), run.Status, run.PlanJSON, run.CartJSON, run.SavingsJSON, run.MetricsJSON, run.CandidateJSON)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

// UpdateRunCart replaces the cart snapshot of a run, e.g. after re-optimizing
// or replacing a line.
func (d *DB) UpdateRunCart(ctx context.Context, runID int, mode internal.OptimizationMode, cartJSON, savingsJSON string) error {
	_, err := d.conn.ExecContext(ctx, `UPDATE runs SET mode = ?, cartJson = ?, savingsJson = ? WHERE id = ?`, string(mode), cartJSON, savingsJSON, runID)
	return err
}

func (d *DB) UpdateRunStatus(ctx context.Context, runID int, status string) error {
	_, err := d.conn.ExecContext(ctx, `UPDATE runs SET status = ? WHERE id = ?`, status, runID)
	return err
}

const runColumns = `id, traceId, requestId, goal, mode, status, planJson, cartJson, savingsJson, metricsJson, candidatesJson, createdAt`

func scanRun(scan func(...any) error) (internal.RunRecord, error) {
	var r internal.RunRecord
	var requestID sql.NullInt64
	var mode string
	err := scan(&r.ID, &r.TraceID, &requestID, &r.Goal, &mode, &r.Status, &r.PlanJSON, &r.CartJSON, &r.SavingsJSON, &r.MetricsJSON, &r.CandidateJSON, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.Mode = internal.OptimizationMode(mode)
	if requestID.Valid {
		id := int(requestID.Int64)
		r.RequestID = &id
	}
	return r, nil
}

func (d *DB) GetRun(ctx context.Context, id int) (*internal.RunRecord, error) {
	r, err := scanRun(d.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) LatestRunForRequest(ctx context.Context, requestID int) (*internal.RunRecord, error) {
	r, err := scanRun(d.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE requestId = ? ORDER BY id DESC LIMIT 1`, requestID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) ListRuns(ctx context.Context, limit int) ([]internal.RunRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRecord
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) InsertCheckoutOrder(ctx context.Context, runID int, sourceID, orderNumber string) error {
	_, err := d.conn.ExecContext(ctx, `INSERT INTO checkout_orders (runId, sourceId, orderNumber) VALUES (?, ?, ?)`, runID, sourceID, orderNumber)
	return err
}

type CheckoutOrderRow struct {
	SourceID    string
	OrderNumber string
}

func (d *DB) ListCheckoutOrders(ctx context.Context, runID int) ([]CheckoutOrderRow, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT sourceId, orderNumber FROM checkout_orders WHERE runId = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CheckoutOrderRow
	for rows.Next() {
		var r CheckoutOrderRow
		if err := rows.Scan(&r.SourceID, &r.OrderNumber); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) InsertCheckoutProgress(ctx context.Context, runID, seq int, p internal.CheckoutProgress) error {
	completed, _ := json.Marshal(p.CompletedSources)
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO checkout_progress (runId, seq, state, progressPct, currentSource, completedJson, message)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, runID, seq, string(p.State), p.ProgressPct, p.CurrentSource, string(completed), p.Message)
	return err
}

func (d *DB) ListCheckoutProgress(ctx context.Context, runID int) ([]internal.CheckoutProgress, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT state, progressPct, COALESCE(currentSource, ''), completedJson, message
FROM checkout_progress WHERE runId = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CheckoutProgress
	for rows.Next() {
		var p internal.CheckoutProgress
		var state, completed string
		if err := rows.Scan(&state, &p.ProgressPct, &p.CurrentSource, &completed, &p.Message); err != nil {
			return nil, err
		}
		p.State = internal.CheckoutState(state)
		_ = json.Unmarshal([]byte(completed), &p.CompletedSources)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
