package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridien-distribution/catalog-cli/internal/db"
	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_product":      `SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at FROM products WHERE id = $1`,
	"find_by_code":     `SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at FROM products WHERE default_code = $1 ORDER BY created_at ASC LIMIT 1`,
	"find_by_barcode":  `SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at FROM products WHERE barcode = $1 ORDER BY created_at ASC LIMIT 1`,
	"find_by_ean":      `SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at FROM products WHERE ean = $1 ORDER BY created_at ASC LIMIT 1`,
	"update_status":    `UPDATE products SET status = $1, updated_at = $2 WHERE id = $3`,
	"list_descriptors": `SELECT erp_id, name, code, barcode, ean, manufacturer, manufacturer_ref FROM erp_descriptors ORDER BY erp_id ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                 TEXT PRIMARY KEY,
	default_code       TEXT,
	barcode            TEXT,
	ean                TEXT,
	fields             JSONB NOT NULL,
	confidence         JSONB NOT NULL,
	sources            JSONB NOT NULL,
	images             JSONB NOT NULL,
	status             TEXT NOT NULL DEFAULT 'raw',
	duplicate_group_id TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_products_default_code ON products(default_code) WHERE default_code IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_products_barcode ON products(barcode) WHERE barcode IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_products_ean ON products(ean) WHERE ean IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);

CREATE TABLE IF NOT EXISTS erp_descriptors (
	erp_id           BIGINT PRIMARY KEY,
	name             TEXT NOT NULL,
	code             TEXT,
	barcode          TEXT,
	ean              TEXT,
	manufacturer     TEXT,
	manufacturer_ref TEXT,
	synced_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orphan_images (
	id        TEXT PRIMARY KEY,
	filename  TEXT NOT NULL,
	reference TEXT,
	payload   JSONB NOT NULL,
	logged_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_orphan_images_reference ON orphan_images(reference);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertProduct(ctx context.Context, p *model.ProductRecord) error {
	if p.ID == "" {
		return eris.New("postgres: upsert product: empty id")
	}
	cols, err := productColumns(p)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert product")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO products
		 (id, default_code, barcode, ean, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   default_code = EXCLUDED.default_code,
		   barcode = EXCLUDED.barcode,
		   ean = EXCLUDED.ean,
		   fields = EXCLUDED.fields,
		   confidence = EXCLUDED.confidence,
		   sources = EXCLUDED.sources,
		   images = EXCLUDED.images,
		   status = EXCLUDED.status,
		   duplicate_group_id = EXCLUDED.duplicate_group_id,
		   updated_at = EXCLUDED.updated_at`,
		p.ID, cols.defaultCode, cols.barcode, cols.ean,
		[]byte(cols.fields), []byte(cols.confidence), []byte(cols.sources), []byte(cols.images),
		string(p.Status), nullString(p.DuplicateGroupID), p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert product %s", p.ID)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.ProductRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at
		 FROM products WHERE id = $1`,
		id,
	)
	p, err := scanProductPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("product not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get product %s", id)
	}
	return p, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, key model.FieldKey, value string) (*model.ProductRecord, error) {
	col, err := keyColumn(key)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at
		 FROM products WHERE %s = $1 ORDER BY created_at ASC LIMIT 1`, col),
		value,
	)
	p, err := scanProductPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find by %s", key)
	}
	return p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error) {
	query := `SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at
	          FROM products WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var products []model.ProductRecord
	for rows.Next() {
		p, err := scanProductPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	if !status.Valid() {
		return eris.Errorf("postgres: invalid status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("product not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM products GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by status iterate")
}

var descriptorColumns = []string{"erp_id", "name", "code", "barcode", "ean", "manufacturer", "manufacturer_ref", "synced_at"}

// ReplaceDescriptors bulk-upserts the incoming snapshot and removes
// rows absent from it, keyed off the sync timestamp.
func (s *PostgresStore) ReplaceDescriptors(ctx context.Context, descriptors []model.ERPDescriptor) error {
	now := time.Now().UTC()

	rows := make([][]any, 0, len(descriptors))
	for _, d := range descriptors {
		rows = append(rows, []any{d.ERPID, d.Name, d.Code, d.Barcode, d.EAN, d.Manufacturer, d.ManufacturerRef, now})
	}

	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "erp_descriptors",
		Columns:      descriptorColumns,
		ConflictKeys: []string{"erp_id"},
	}, rows); err != nil {
		return eris.Wrap(err, "postgres: replace descriptors")
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM erp_descriptors WHERE synced_at < $1`,
		now,
	)
	return eris.Wrap(err, "postgres: prune stale descriptors")
}

func (s *PostgresStore) ListDescriptors(ctx context.Context) ([]model.ERPDescriptor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT erp_id, name, code, barcode, ean, manufacturer, manufacturer_ref
		 FROM erp_descriptors ORDER BY erp_id ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list descriptors")
	}
	defer rows.Close()

	var descriptors []model.ERPDescriptor
	for rows.Next() {
		var d model.ERPDescriptor
		if err := rows.Scan(&d.ERPID, &d.Name, &d.Code, &d.Barcode, &d.EAN, &d.Manufacturer, &d.ManufacturerRef); err != nil {
			return nil, eris.Wrap(err, "postgres: scan descriptor")
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, eris.Wrap(rows.Err(), "postgres: list descriptors iterate")
}

func (s *PostgresStore) LogOrphanImages(ctx context.Context, orphans []model.ImageRef) error {
	now := time.Now().UTC()
	for _, img := range orphans {
		payload, err := json.Marshal(img)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal orphan image")
		}
		id := img.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO orphan_images (id, filename, reference, payload, logged_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, logged_at = EXCLUDED.logged_at`,
			id, img.Filename, nullString(img.Reference), payload, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: log orphan image %s", img.Filename)
		}
	}
	return nil
}

func (s *PostgresStore) ListOrphanImages(ctx context.Context, limit int) ([]model.ImageRef, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM orphan_images ORDER BY logged_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list orphan images")
	}
	defer rows.Close()

	var orphans []model.ImageRef
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan orphan image")
		}
		var img model.ImageRef
		if err := json.Unmarshal(payload, &img); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal orphan image")
		}
		orphans = append(orphans, img)
	}
	return orphans, eris.Wrap(rows.Err(), "postgres: list orphan images iterate")
}

func scanProductPG(row pgx.Row) (*model.ProductRecord, error) {
	var p model.ProductRecord
	var fieldsJSON, confJSON, sourcesJSON, imagesJSON []byte
	var dupGroup *string

	err := row.Scan(&p.ID, &fieldsJSON, &confJSON, &sourcesJSON, &imagesJSON,
		&p.Status, &dupGroup, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fieldsJSON, &p.Fields); err != nil {
		return nil, eris.Wrap(err, "unmarshal fields")
	}
	if err := json.Unmarshal(confJSON, &p.Confidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal confidence")
	}
	if err := json.Unmarshal(sourcesJSON, &p.Sources); err != nil {
		return nil, eris.Wrap(err, "unmarshal sources")
	}
	if err := json.Unmarshal(imagesJSON, &p.Images); err != nil {
		return nil, eris.Wrap(err, "unmarshal images")
	}
	if dupGroup != nil {
		p.DuplicateGroupID = *dupGroup
	}
	return &p, nil
}
