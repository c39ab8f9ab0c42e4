package dbadapter

import (
	"context"
	"fmt"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// IntrospectSchema reads the current table/column shape via
// information_schema, the source of truth the Catalog component
// reconciles against its declarative overlay.
func (a *Adapter) IntrospectSchema(ctx context.Context) ([]domain.CatalogEntry, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS nullable,
			COALESCE(pk.is_pk, false) AS is_pk,
			COALESCE(uq.is_unique, false) AS is_unique,
			fk.target_table,
			fk.target_column
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.table_name, kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
		) pk ON pk.table_name = c.table_name AND pk.column_name = c.column_name
		LEFT JOIN (
			SELECT kcu.table_name, kcu.column_name, true AS is_unique
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'UNIQUE'
		) uq ON uq.table_name = c.table_name AND uq.column_name = c.column_name
		LEFT JOIN (
			SELECT
				kcu.table_name, kcu.column_name,
				ccu.table_name AS target_table, ccu.column_name AS target_column
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
		) fk ON fk.table_name = c.table_name AND fk.column_name = c.column_name
		WHERE c.table_schema = 'public'
		ORDER BY c.table_name, c.ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		var e domain.CatalogEntry
		var fkTable, fkCol *string
		if err := rows.Scan(&e.Table, &e.Column, &e.Type, &e.Nullable, &e.PrimaryKey, &e.Unique, &fkTable, &fkCol); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		if fkTable != nil {
			e.FKTargetTable = *fkTable
		}
		if fkCol != nil {
			e.FKTargetCol = *fkCol
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema rows: %w", err)
	}
	return entries, nil
}

// IntrospectIndexes reads current index shapes and usage counters from
// pg_index/pg_stat_user_indexes, the source the live index cache refreshes
// from.
func (a *Adapter) IntrospectIndexes(ctx context.Context) ([]domain.LiveIndex, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT
			ic.relname AS index_name,
			tc.relname AS table_name,
			am.amname AS method,
			pg_relation_size(ic.oid) AS size_bytes,
			COALESCE(s.idx_scan, 0) AS scan_count,
			i.indisvalid,
			pg_get_expr(i.indpred, i.indrelid) AS predicate
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_class tc ON tc.oid = i.indrelid
		JOIN pg_am am ON am.oid = ic.relam
		LEFT JOIN pg_stat_user_indexes s ON s.indexrelid = i.indexrelid
		JOIN pg_namespace n ON n.oid = tc.relnamespace
		WHERE n.nspname = 'public'`)
	if err != nil {
		return nil, fmt.Errorf("introspecting indexes: %w", err)
	}
	defer rows.Close()

	var out []domain.LiveIndex
	for rows.Next() {
		var li domain.LiveIndex
		var method string
		var predicate *string
		if err := rows.Scan(&li.Name, &li.Table, &method, &li.SizeBytes, &li.ScanCount, &li.Valid, &predicate); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		li.Method = mapPgMethod(method)
		if predicate != nil {
			li.Predicate = *predicate
		}
		out = append(out, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index rows: %w", err)
	}
	return out, nil
}

func mapPgMethod(amname string) domain.IndexMethod {
	switch amname {
	case "hash":
		return domain.MethodHash
	case "gist", "spgist":
		return domain.MethodGeo
	case "gin":
		return domain.MethodFulltext
	case "brin":
		return domain.MethodBRIN
	default:
		return domain.MethodOrdered
	}
}

// EstimateBloatRatio estimates bloat without the pgstattuple extension, as
// the table's dead-tuple share n_dead_tup / (n_live_tup + n_dead_tup) from
// pg_stat_user_tables (0 when both are 0). The ratio is table-level:
// indexName is validated but does not enter the estimate. It is an
// estimate, not an exact measurement.
func (a *Adapter) EstimateBloatRatio(ctx context.Context, table, indexName string) (float64, error) {
	if err := ValidateIdentifier(table); err != nil {
		return 0, err
	}
	if err := ValidateIdentifier(indexName); err != nil {
		return 0, err
	}

	var liveTuples, deadTuples float64
	err := a.pool.QueryRow(ctx, `
		SELECT COALESCE(n_live_tup, 0), COALESCE(n_dead_tup, 0)
		FROM pg_stat_user_tables
		WHERE relname = $1`, table).Scan(&liveTuples, &deadTuples)
	if err != nil {
		return 0, fmt.Errorf("reading table stats for %s: %w", table, err)
	}

	total := liveTuples + deadTuples
	if total == 0 {
		return 0, nil
	}
	return deadTuples / total, nil
}
