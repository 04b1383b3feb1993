package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/quantrail/price-sync/internal/models"
)

// ErrMappingNotFound indicates a symbol has no stored mapping. Callers
// treat this as a reportable condition, not a failure.
var ErrMappingNotFound = errors.New("symbol mapping not found")

// MappingFilter narrows GetSymbolMappings results
type MappingFilter struct {
	MatchedOnly bool
	Index       string
}

// UpsertSymbolMappings writes mappings with replace-on-conflict
// semantics keyed by symbol
func (db *DB) UpsertSymbolMappings(mappings []*models.SymbolMapping) error {
	query := `
		INSERT INTO symbol_mappings (
			symbol, company_name, industry, indexes,
			ref_code, ref_symbol, ref_name, confidence, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			industry = EXCLUDED.industry,
			indexes = EXCLUDED.indexes,
			ref_code = EXCLUDED.ref_code,
			ref_symbol = EXCLUDED.ref_symbol,
			ref_name = EXCLUDED.ref_name,
			confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at
	`
	stmt, err := db.conn.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare mapping upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, m := range mappings {
		_, err := stmt.Exec(
			m.Symbol, m.CompanyName, m.Industry, pq.Array(m.Indexes),
			nullString(m.RefCode), nullString(m.RefSymbol), nullString(m.RefName),
			m.Confidence, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert mapping for %s: %w", m.Symbol, err)
		}
		m.UpdatedAt = now
	}
	return nil
}

// GetSymbolMapping retrieves the mapping for one symbol
func (db *DB) GetSymbolMapping(symbol string) (*models.SymbolMapping, error) {
	query := `
		SELECT symbol, company_name, industry, indexes,
		       ref_code, ref_symbol, ref_name, confidence, updated_at
		FROM symbol_mappings
		WHERE symbol = $1
	`
	m, err := scanMapping(db.conn.QueryRow(query, symbol))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrMappingNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symbol mapping: %w", err)
	}
	return m, nil
}

// GetSymbolMappings retrieves mappings, optionally filtered
func (db *DB) GetSymbolMappings(filter MappingFilter) ([]*models.SymbolMapping, error) {
	query := `
		SELECT symbol, company_name, industry, indexes,
		       ref_code, ref_symbol, ref_name, confidence, updated_at
		FROM symbol_mappings
	`
	var conditions []string
	var args []interface{}
	if filter.MatchedOnly {
		conditions = append(conditions, "ref_code IS NOT NULL")
	}
	if filter.Index != "" {
		args = append(args, filter.Index)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(indexes)", len(args)))
	}
	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY symbol ASC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.SymbolMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan symbol mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMapping(row rowScanner) (*models.SymbolMapping, error) {
	var m models.SymbolMapping
	var industry, refCode, refSymbol, refName sql.NullString

	err := row.Scan(
		&m.Symbol, &m.CompanyName, &industry, pq.Array(&m.Indexes),
		&refCode, &refSymbol, &refName, &m.Confidence, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if industry.Valid {
		m.Industry = industry.String
	}
	if refCode.Valid {
		m.RefCode = refCode.String
	}
	if refSymbol.Valid {
		m.RefSymbol = refSymbol.String
	}
	if refName.Valid {
		m.RefName = refName.String
	}
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
