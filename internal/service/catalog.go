package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// catalogSchema is the local resource table. Coordinates are nullable so
// unplaceable records survive an import.
const catalogSchema = `CREATE TABLE IF NOT EXISTS points (
	id BIGINT PRIMARY KEY,
	coleccion VARCHAR NOT NULL,
	codigo VARCHAR,
	nombre VARCHAR NOT NULL,
	nombre_subtipo_recurso VARCHAR,
	nombre_provincia VARCHAR,
	nombre_municipio VARCHAR,
	longitud DOUBLE,
	latitud DOUBLE,
	imagenes VARCHAR
)`

const catalogSelect = `SELECT id, coleccion, codigo, nombre, nombre_subtipo_recurso, nombre_provincia, nombre_municipio, longitud, latitud, imagenes FROM points`

// catalogFilters maps accepted filter keys onto columns.
var catalogFilters = map[string]string{
	"provincia": "nombre_provincia",
	"municipio": "nombre_municipio",
	"subtipo":   "nombre_subtipo_recurso",
}

// CatalogPointSource answers queries from a local DuckDB table.
type CatalogPointSource struct {
	db *sql.DB
}

// NewCatalogPointSource uses db, which must not be nil.
func NewCatalogPointSource(db *sql.DB) *CatalogPointSource {
	return &CatalogPointSource{db: db}
}

// Init creates the points table.
func (s *CatalogPointSource) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, catalogSchema); err != nil {
		return fmt.Errorf("create points table: %w", err)
	}
	return nil
}

// FetchPoints filters by category plus the whitelisted filter keys. "q"
// matches the name case-insensitively; other keys are ignored.
func (s *CatalogPointSource) FetchPoints(ctx context.Context, category Category, filters Filters) ([]PointRecord, error) {
	query, args := buildCatalogQuery(category, filters)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var records []PointRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	return records, nil
}

func buildCatalogQuery(category Category, filters Filters) (string, []any) {
	where := []string{"coleccion = ?"}
	args := []any{string(category)}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := filters[k]
		if v == "" {
			continue
		}
		if k == "q" {
			where = append(where, "nombre ILIKE ?")
			args = append(args, "%"+v+"%")
			continue
		}
		if col, ok := catalogFilters[k]; ok {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}
	return catalogSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY id", args
}

func scanRecord(rows *sql.Rows) (PointRecord, error) {
	var (
		r                                     PointRecord
		category                              string
		code, subtype, province, municipality sql.NullString
		lon, lat                              sql.NullFloat64
		images                                sql.NullString
	)
	if err := rows.Scan(&r.ID, &category, &code, &r.Name, &subtype, &province, &municipality, &lon, &lat, &images); err != nil {
		return r, fmt.Errorf("scan point: %w", err)
	}
	r.Category = Category(category)
	r.Code = code.String
	r.Subtype = subtype.String
	r.Province = province.String
	r.Municipality = municipality.String
	r.Longitude = OptionalFloat{Value: lon.Float64, Valid: lon.Valid}
	r.Latitude = OptionalFloat{Value: lat.Float64, Valid: lat.Valid}
	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &r.Images); err != nil {
			return r, fmt.Errorf("decode images for point %d: %w", r.ID, err)
		}
	}
	return r, nil
}

// Import upserts records in one transaction and returns how many were written.
func (s *CatalogPointSource) Import(ctx context.Context, records []PointRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO points VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, r := range records {
		if r.Name == "" {
			return n, errors.New("import: record without name")
		}
		images, err := json.Marshal(r.Images)
		if err != nil {
			return n, err
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, string(r.Category), nullString(r.Code), r.Name,
			nullString(r.Subtype), nullString(r.Province), nullString(r.Municipality),
			nullFloat(r.Longitude), nullFloat(r.Latitude), string(images),
		); err != nil {
			return n, fmt.Errorf("insert point %d: %w", r.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f OptionalFloat) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f.Value, Valid: f.Valid}
}
