package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/warrantyops/internal/domain"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve pooled and transactional execution.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production Store.
type Postgres struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

// NewPostgres connects, pings, and returns the store.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Postgres{pool: pool, db: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrations returns the schema statements, one SQL statement per string.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id      TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS transfers (
			id           BIGSERIAL PRIMARY KEY,
			from_account TEXT NOT NULL,
			to_account   TEXT NOT NULL,
			amount       BIGINT NOT NULL,
			reason       TEXT NOT NULL,
			at           BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id          BIGSERIAL PRIMARY KEY,
			transfer_id BIGINT NOT NULL REFERENCES transfers(id),
			account_id  TEXT NOT NULL,
			delta       BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account_id)`,
		`CREATE TABLE IF NOT EXISTS warranties (
			id                BIGSERIAL PRIMARY KEY,
			product_id        TEXT NOT NULL,
			manufacturer      TEXT NOT NULL,
			owner             TEXT NOT NULL,
			issued_at         BIGINT NOT NULL,
			expires_at        BIGINT NOT NULL,
			maintenance_count BIGINT NOT NULL DEFAULT 0,
			active            BOOLEAN NOT NULL DEFAULT TRUE,
			policy_id         BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS warranty_claims (
			warranty_id BIGINT PRIMARY KEY REFERENCES warranties(id),
			description TEXT NOT NULL,
			claimed_at  BIGINT NOT NULL,
			status      TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS maintenance_records (
			warranty_id BIGINT NOT NULL REFERENCES warranties(id),
			seq         BIGINT NOT NULL,
			description TEXT NOT NULL,
			recorded_by TEXT NOT NULL,
			recorded_at BIGINT NOT NULL,
			PRIMARY KEY (warranty_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS insurance_policies (
			id              BIGSERIAL PRIMARY KEY,
			warranty_id     BIGINT NOT NULL REFERENCES warranties(id),
			holder          TEXT NOT NULL,
			premium_paid    BIGINT NOT NULL,
			coverage_amount BIGINT NOT NULL,
			starts_at       BIGINT NOT NULL,
			ends_at         BIGINT NOT NULL,
			active          BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS insurance_claims (
			policy_id    BIGINT PRIMARY KEY REFERENCES insurance_policies(id),
			amount       BIGINT NOT NULL,
			claimed_at   BIGINT NOT NULL,
			status       TEXT NOT NULL,
			processed_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS certificates (
			warranty_id  BIGINT PRIMARY KEY REFERENCES warranties(id),
			token_id     TEXT NOT NULL UNIQUE,
			metadata_uri TEXT NOT NULL,
			minted_at    BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ratings (
			warranty_id BIGINT NOT NULL REFERENCES warranties(id),
			rater       TEXT NOT NULL,
			score       INT NOT NULL,
			comment     TEXT NOT NULL DEFAULT '',
			rated_at    BIGINT NOT NULL,
			PRIMARY KEY (warranty_id, rater)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id          BIGSERIAL PRIMARY KEY,
			warranty_id BIGINT NOT NULL,
			action      TEXT NOT NULL,
			actor       TEXT NOT NULL,
			at          BIGINT NOT NULL,
			detail      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_warranty ON events(warranty_id)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key             TEXT PRIMARY KEY,
			request_hash    TEXT NOT NULL,
			status          TEXT NOT NULL,
			response_status INT,
			response_body   JSONB
		)`,
	}
}

// Migrate applies the schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Atomic executes fn inside a REPEATABLE READ transaction. A nested call
// joins the enclosing transaction.
func (p *Postgres) Atomic(ctx context.Context, fn func(Store) error) error {
	if p.inTx {
		return fn(p)
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	child := &Postgres{pool: p.pool, db: tx, inTx: true}
	if err := fn(child); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// ─── Accounts and ledger ────────────────────────────────────────────────

func (p *Postgres) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var acc domain.Account
	err := p.db.QueryRow(ctx, "SELECT id, balance FROM accounts WHERE id = $1", id).
		Scan(&acc.ID, &acc.Balance)
	if err != nil {
		return nil, notFound(err)
	}
	return &acc, nil
}

func (p *Postgres) GetAccountForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	var acc domain.Account
	err := p.db.QueryRow(ctx, "SELECT id, balance FROM accounts WHERE id = $1 FOR UPDATE", id).
		Scan(&acc.ID, &acc.Balance)
	if err != nil {
		return nil, notFound(err)
	}
	return &acc, nil
}

func (p *Postgres) EnsureAccount(ctx context.Context, id string) error {
	_, err := p.db.Exec(ctx,
		"INSERT INTO accounts (id, balance) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING", id)
	return err
}

func (p *Postgres) AdjustBalance(ctx context.Context, id string, delta int64) error {
	tag, err := p.db.Exec(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2", delta, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateTransfer(ctx context.Context, t *domain.Transfer) (int64, error) {
	err := p.db.QueryRow(ctx,
		`INSERT INTO transfers (from_account, to_account, amount, reason, at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		t.From, t.To, t.Amount, t.Reason, t.At).Scan(&t.ID)
	if err != nil {
		return 0, fmt.Errorf("transfer insert failed: %w", err)
	}
	return t.ID, nil
}

func (p *Postgres) AppendLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	for _, e := range entries {
		_, err := p.db.Exec(ctx,
			"INSERT INTO ledger_entries (transfer_id, account_id, delta) VALUES ($1, $2, $3)",
			e.TransferID, e.AccountID, e.Delta)
		if err != nil {
			return fmt.Errorf("ledger entry failed: %w", err)
		}
	}
	return nil
}

func (p *Postgres) ListLedgerEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	var exists bool
	if err := p.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", accountID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	rows, err := p.db.Query(ctx,
		"SELECT transfer_id, account_id, delta FROM ledger_entries WHERE account_id = $1 ORDER BY id",
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.TransferID, &e.AccountID, &e.Delta); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Warranties ─────────────────────────────────────────────────────────

func (p *Postgres) CreateWarranty(ctx context.Context, w *domain.Warranty) (int64, error) {
	err := p.db.QueryRow(ctx,
		`INSERT INTO warranties (product_id, manufacturer, owner, issued_at, expires_at, maintenance_count, active, policy_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		w.ProductID, w.Manufacturer, w.Owner, w.IssuedAt, w.ExpiresAt,
		w.MaintenanceCount, w.Active, w.PolicyID).Scan(&w.ID)
	if err != nil {
		return 0, fmt.Errorf("warranty insert failed: %w", err)
	}
	return w.ID, nil
}

func (p *Postgres) GetWarranty(ctx context.Context, id int64) (*domain.Warranty, error) {
	var w domain.Warranty
	err := p.db.QueryRow(ctx,
		`SELECT id, product_id, manufacturer, owner, issued_at, expires_at, maintenance_count, active, policy_id
		 FROM warranties WHERE id = $1`, id).
		Scan(&w.ID, &w.ProductID, &w.Manufacturer, &w.Owner, &w.IssuedAt,
			&w.ExpiresAt, &w.MaintenanceCount, &w.Active, &w.PolicyID)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (p *Postgres) UpdateWarranty(ctx context.Context, w *domain.Warranty) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE warranties
		 SET owner = $1, expires_at = $2, maintenance_count = $3, active = $4, policy_id = $5
		 WHERE id = $6`,
		w.Owner, w.ExpiresAt, w.MaintenanceCount, w.Active, w.PolicyID, w.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendMaintenance(ctx context.Context, rec *domain.MaintenanceRecord) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO maintenance_records (warranty_id, seq, description, recorded_by, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.WarrantyID, rec.Seq, rec.Description, rec.RecordedBy, rec.RecordedAt)
	return err
}

func (p *Postgres) ListMaintenance(ctx context.Context, warrantyID int64) ([]domain.MaintenanceRecord, error) {
	rows, err := p.db.Query(ctx,
		`SELECT warranty_id, seq, description, recorded_by, recorded_at
		 FROM maintenance_records WHERE warranty_id = $1 ORDER BY seq`, warrantyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MaintenanceRecord
	for rows.Next() {
		var r domain.MaintenanceRecord
		if err := rows.Scan(&r.WarrantyID, &r.Seq, &r.Description, &r.RecordedBy, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Warranty claims ────────────────────────────────────────────────────

func (p *Postgres) PutWarrantyClaim(ctx context.Context, c *domain.WarrantyClaim) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO warranty_claims (warranty_id, description, claimed_at, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (warranty_id) DO UPDATE SET
			description = excluded.description,
			claimed_at  = excluded.claimed_at,
			status      = excluded.status`,
		c.WarrantyID, c.Description, c.ClaimedAt, c.Status)
	return err
}

func (p *Postgres) GetWarrantyClaim(ctx context.Context, warrantyID int64) (*domain.WarrantyClaim, error) {
	var c domain.WarrantyClaim
	err := p.db.QueryRow(ctx,
		`SELECT warranty_id, description, claimed_at, status
		 FROM warranty_claims WHERE warranty_id = $1`, warrantyID).
		Scan(&c.WarrantyID, &c.Description, &c.ClaimedAt, &c.Status)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ─── Insurance ──────────────────────────────────────────────────────────

func (p *Postgres) CreatePolicy(ctx context.Context, pol *domain.InsurancePolicy) (int64, error) {
	err := p.db.QueryRow(ctx,
		`INSERT INTO insurance_policies (warranty_id, holder, premium_paid, coverage_amount, starts_at, ends_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		pol.WarrantyID, pol.Holder, pol.PremiumPaid, pol.CoverageAmount,
		pol.StartsAt, pol.EndsAt, pol.Active).Scan(&pol.ID)
	if err != nil {
		return 0, fmt.Errorf("policy insert failed: %w", err)
	}
	return pol.ID, nil
}

func (p *Postgres) GetPolicy(ctx context.Context, id int64) (*domain.InsurancePolicy, error) {
	var pol domain.InsurancePolicy
	err := p.db.QueryRow(ctx,
		`SELECT id, warranty_id, holder, premium_paid, coverage_amount, starts_at, ends_at, active
		 FROM insurance_policies WHERE id = $1`, id).
		Scan(&pol.ID, &pol.WarrantyID, &pol.Holder, &pol.PremiumPaid,
			&pol.CoverageAmount, &pol.StartsAt, &pol.EndsAt, &pol.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &pol, nil
}

func (p *Postgres) UpdatePolicy(ctx context.Context, pol *domain.InsurancePolicy) error {
	tag, err := p.db.Exec(ctx,
		"UPDATE insurance_policies SET active = $1 WHERE id = $2", pol.Active, pol.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) PutInsuranceClaim(ctx context.Context, c *domain.InsuranceClaim) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO insurance_claims (policy_id, amount, claimed_at, status, processed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (policy_id) DO UPDATE SET
			amount       = excluded.amount,
			claimed_at   = excluded.claimed_at,
			status       = excluded.status,
			processed_at = excluded.processed_at`,
		c.PolicyID, c.Amount, c.ClaimedAt, c.Status, c.ProcessedAt)
	return err
}

func (p *Postgres) GetInsuranceClaim(ctx context.Context, policyID int64) (*domain.InsuranceClaim, error) {
	var c domain.InsuranceClaim
	err := p.db.QueryRow(ctx,
		`SELECT policy_id, amount, claimed_at, status, processed_at
		 FROM insurance_claims WHERE policy_id = $1`, policyID).
		Scan(&c.PolicyID, &c.Amount, &c.ClaimedAt, &c.Status, &c.ProcessedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ─── Certificates, ratings, events ──────────────────────────────────────

func (p *Postgres) CreateCertificate(ctx context.Context, c *domain.Certificate) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO certificates (warranty_id, token_id, metadata_uri, minted_at)
		 VALUES ($1, $2, $3, $4)`,
		c.WarrantyID, c.TokenID, c.MetadataURI, c.MintedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (p *Postgres) GetCertificate(ctx context.Context, warrantyID int64) (*domain.Certificate, error) {
	var c domain.Certificate
	err := p.db.QueryRow(ctx,
		`SELECT warranty_id, token_id, metadata_uri, minted_at
		 FROM certificates WHERE warranty_id = $1`, warrantyID).
		Scan(&c.WarrantyID, &c.TokenID, &c.MetadataURI, &c.MintedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (p *Postgres) PutRating(ctx context.Context, r *domain.Rating) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO ratings (warranty_id, rater, score, comment, rated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (warranty_id, rater) DO UPDATE SET
			score    = excluded.score,
			comment  = excluded.comment,
			rated_at = excluded.rated_at`,
		r.WarrantyID, r.Rater, r.Score, r.Comment, r.RatedAt)
	return err
}

func (p *Postgres) ListRatings(ctx context.Context, warrantyID int64) ([]domain.Rating, error) {
	rows, err := p.db.Query(ctx,
		`SELECT warranty_id, rater, score, comment, rated_at
		 FROM ratings WHERE warranty_id = $1 ORDER BY rater`, warrantyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Rating
	for rows.Next() {
		var r domain.Rating
		if err := rows.Scan(&r.WarrantyID, &r.Rater, &r.Score, &r.Comment, &r.RatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendEvent(ctx context.Context, e *domain.Event) error {
	return p.db.QueryRow(ctx,
		`INSERT INTO events (warranty_id, action, actor, at, detail)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.WarrantyID, e.Action, e.Actor, e.At, e.Detail).Scan(&e.ID)
}

func (p *Postgres) ListEvents(ctx context.Context, warrantyID int64) ([]domain.Event, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, warranty_id, action, actor, at, detail
		 FROM events WHERE warranty_id = $1 ORDER BY id`, warrantyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.WarrantyID, &e.Action, &e.Actor, &e.At, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Idempotency ────────────────────────────────────────────────────────

func (p *Postgres) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var status *int
	var body []byte
	err := p.db.QueryRow(ctx,
		`SELECT key, request_hash, status, response_status, response_body
		 FROM idempotency_keys WHERE key = $1`, key).
		Scan(&rec.Key, &rec.RequestHash, &rec.Status, &status, &body)
	if err != nil {
		return nil, notFound(err)
	}
	if status != nil {
		rec.ResponseStatus = *status
	}
	rec.ResponseBody = body
	return &rec, nil
}

func (p *Postgres) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	_, err := p.db.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, $3)",
		key, requestHash, domain.IdemInProgress)
	if isUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	if err != nil {
		return fmt.Errorf("key reservation failed: %w", err)
	}
	return nil
}

func (p *Postgres) CompleteIdempotencyKey(ctx context.Context, key string, status int, body []byte) error {
	tag, err := p.db.Exec(ctx,
		"UPDATE idempotency_keys SET status = $1, response_status = $2, response_body = $3 WHERE key = $4",
		domain.IdemCompleted, status, body, key)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*Postgres)(nil)
