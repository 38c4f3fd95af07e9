package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Identity key values are mirrored out of the JSON blob into their own
// columns so lookups stay indexed. The partial unique indexes keep one
// record per key without forbidding records that lack the key.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                 TEXT PRIMARY KEY,
	default_code       TEXT,
	barcode            TEXT,
	ean                TEXT,
	fields             TEXT NOT NULL,
	confidence         TEXT NOT NULL,
	sources            TEXT NOT NULL,
	images             TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'raw',
	duplicate_group_id TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS erp_descriptors (
	erp_id           INTEGER PRIMARY KEY,
	name             TEXT NOT NULL,
	code             TEXT,
	barcode          TEXT,
	ean              TEXT,
	manufacturer     TEXT,
	manufacturer_ref TEXT,
	synced_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS orphan_images (
	id        TEXT PRIMARY KEY,
	filename  TEXT NOT NULL,
	reference TEXT,
	payload   TEXT NOT NULL,
	logged_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_products_default_code ON products(default_code) WHERE default_code IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_products_barcode ON products(barcode) WHERE barcode IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_products_ean ON products(ean) WHERE ean IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
CREATE INDEX IF NOT EXISTS idx_orphan_images_reference ON orphan_images(reference);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, p *model.ProductRecord) error {
	if p.ID == "" {
		return eris.New("sqlite: upsert product: empty id")
	}
	cols, err := productColumns(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert product")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products
		 (id, default_code, barcode, ean, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   default_code = excluded.default_code,
		   barcode = excluded.barcode,
		   ean = excluded.ean,
		   fields = excluded.fields,
		   confidence = excluded.confidence,
		   sources = excluded.sources,
		   images = excluded.images,
		   status = excluded.status,
		   duplicate_group_id = excluded.duplicate_group_id,
		   updated_at = excluded.updated_at`,
		p.ID, cols.defaultCode, cols.barcode, cols.ean,
		cols.fields, cols.confidence, cols.sources, cols.images,
		string(p.Status), nullString(p.DuplicateGroupID), p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert product %s", p.ID)
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.ProductRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at
		 FROM products WHERE id = ?`,
		id,
	)
	p, err := scanProduct(row)
	if err == errNoProduct {
		return nil, eris.Errorf("product not found: %s", id)
	}
	return p, err
}

func (s *SQLiteStore) FindByKey(ctx context.Context, key model.FieldKey, value string) (*model.ProductRecord, error) {
	col, err := keyColumn(key)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at
		 FROM products WHERE `+col+` = ? ORDER BY created_at ASC LIMIT 1`,
		value,
	)
	p, err := scanProduct(row)
	if err == errNoProduct {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error) {
	query := `SELECT id, fields, confidence, sources, images, status, duplicate_group_id, created_at, updated_at
	          FROM products WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.ProductRecord
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	if !status.Valid() {
		return eris.Errorf("sqlite: invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", id)
	}
	return checkRowsAffected(res, "product", id)
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM products GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by status iterate")
}

func (s *SQLiteStore) ReplaceDescriptors(ctx context.Context, descriptors []model.ERPDescriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace descriptors: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM erp_descriptors`); err != nil {
		return eris.Wrap(err, "sqlite: replace descriptors: clear")
	}
	now := time.Now().UTC()
	for _, d := range descriptors {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO erp_descriptors (erp_id, name, code, barcode, ean, manufacturer, manufacturer_ref, synced_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ERPID, d.Name, d.Code, d.Barcode, d.EAN, d.Manufacturer, d.ManufacturerRef, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert descriptor %d", d.ERPID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: replace descriptors: commit")
}

func (s *SQLiteStore) ListDescriptors(ctx context.Context) ([]model.ERPDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT erp_id, name, code, barcode, ean, manufacturer, manufacturer_ref
		 FROM erp_descriptors ORDER BY erp_id ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list descriptors")
	}
	defer rows.Close()

	var descriptors []model.ERPDescriptor
	for rows.Next() {
		var d model.ERPDescriptor
		if err := rows.Scan(&d.ERPID, &d.Name, &d.Code, &d.Barcode, &d.EAN, &d.Manufacturer, &d.ManufacturerRef); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan descriptor")
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, eris.Wrap(rows.Err(), "sqlite: list descriptors iterate")
}

func (s *SQLiteStore) LogOrphanImages(ctx context.Context, orphans []model.ImageRef) error {
	now := time.Now().UTC()
	for _, img := range orphans {
		payload, err := json.Marshal(img)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal orphan image")
		}
		id := img.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO orphan_images (id, filename, reference, payload, logged_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, logged_at = excluded.logged_at`,
			id, img.Filename, nullString(img.Reference), string(payload), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: log orphan image %s", img.Filename)
		}
	}
	return nil
}

func (s *SQLiteStore) ListOrphanImages(ctx context.Context, limit int) ([]model.ImageRef, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM orphan_images ORDER BY logged_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list orphan images")
	}
	defer rows.Close()

	var orphans []model.ImageRef
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan orphan image")
		}
		var img model.ImageRef
		if err := json.Unmarshal([]byte(payload), &img); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal orphan image")
		}
		orphans = append(orphans, img)
	}
	return orphans, eris.Wrap(rows.Err(), "sqlite: list orphan images iterate")
}

// helpers

var errNoProduct = eris.New("no product row")

// keyColumn maps an identity key to its mirrored column, rejecting
// keys that are not part of the identity set.
func keyColumn(key model.FieldKey) (string, error) {
	switch key {
	case model.FieldDefaultCode:
		return "default_code", nil
	case model.FieldBarcode:
		return "barcode", nil
	case model.FieldEAN:
		return "ean", nil
	}
	return "", eris.Errorf("store: %q is not an identity key", key)
}

type productCols struct {
	defaultCode, barcode, ean          *string
	fields, confidence, sources, images string
}

func productColumns(p *model.ProductRecord) (productCols, error) {
	var c productCols
	c.defaultCode = p.Fields.DefaultCode
	c.barcode = p.Fields.Barcode
	c.ean = p.Fields.EAN

	fieldsJSON, err := json.Marshal(p.Fields)
	if err != nil {
		return c, eris.Wrap(err, "marshal fields")
	}
	confJSON, err := json.Marshal(p.Confidence)
	if err != nil {
		return c, eris.Wrap(err, "marshal confidence")
	}
	sourcesJSON, err := json.Marshal(p.Sources)
	if err != nil {
		return c, eris.Wrap(err, "marshal sources")
	}
	imagesJSON, err := json.Marshal(p.Images)
	if err != nil {
		return c, eris.Wrap(err, "marshal images")
	}
	c.fields = string(fieldsJSON)
	c.confidence = string(confJSON)
	c.sources = string(sourcesJSON)
	c.images = string(imagesJSON)
	return c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProduct(row scannable) (*model.ProductRecord, error) {
	var p model.ProductRecord
	var fieldsJSON, confJSON, sourcesJSON, imagesJSON string
	var dupGroup sql.NullString

	err := row.Scan(&p.ID, &fieldsJSON, &confJSON, &sourcesJSON, &imagesJSON,
		&p.Status, &dupGroup, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errNoProduct
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan product")
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &p.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	if err := json.Unmarshal([]byte(confJSON), &p.Confidence); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal confidence")
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &p.Sources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal sources")
	}
	if err := json.Unmarshal([]byte(imagesJSON), &p.Images); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal images")
	}
	if dupGroup.Valid {
		p.DuplicateGroupID = dupGroup.String
	}
	return &p, nil
}
