package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type column struct {
	name    string
	sqlType string
}

// expectedColumns lists the columns added after the base schema. They are
// always nullable so existing rows stay valid.
var expectedColumns = map[string][]column{
	tableRouterStatus: {
		{"is_online", "BOOLEAN"},
	},
	tableSmartPlug: {
		{"raw_switch_state", "VARCHAR(32)"},
		{"product_name", "VARCHAR(128)"},
		{"device_name", "VARCHAR(128)"},
		{"manufacturer", "VARCHAR(64)"},
		{"firmware_version", "VARCHAR(32)"},
		{"present", "INT"},
		{"multimeter_power", "INT"},
		{"switch_power", "INT"},
		{"hkr_set_temperature", "INT"},
		{"hkr_reduce_temperature", "INT"},
		{"hkr_comfort_temperature", "INT"},
		{"hkr_valve_status", "VARCHAR(32)"},
		{"interval_cost_eur", "DOUBLE PRECISION"},
	},
	tableSpeedtest: {
		{"server_name", "VARCHAR(255)"},
	},
	tableConsumption: {
		{"consumption_unit", "VARCHAR(16)"},
		{"unit_price", "DOUBLE PRECISION"},
		{"unit_price_vat", "DOUBLE PRECISION"},
	},
	tableLive: {
		{"power_production", "DOUBLE PRECISION"},
		{"min_power", "DOUBLE PRECISION"},
		{"average_power", "DOUBLE PRECISION"},
		{"max_power", "DOUBLE PRECISION"},
		{"accumulated_consumption", "DOUBLE PRECISION"},
		{"accumulated_cost", "DOUBLE PRECISION"},
		{"currency", "VARCHAR(8)"},
		{"voltage_phase1", "DOUBLE PRECISION"},
		{"voltage_phase2", "DOUBLE PRECISION"},
		{"voltage_phase3", "DOUBLE PRECISION"},
		{"current_l1", "DOUBLE PRECISION"},
		{"current_l2", "DOUBLE PRECISION"},
		{"current_l3", "DOUBLE PRECISION"},
	},
}

// EnsureColumns adds every expected column missing from its table. It never
// drops or alters existing columns. A missing table is an error.
func (db *Database) EnsureColumns(ctx context.Context) error {
	for table, cols := range expectedColumns {
		existing, err := db.columns(ctx, table)
		if err != nil {
			return wrap("read columns of "+table, err)
		}
		if len(existing) == 0 {
			return wrap("ensure columns", fmt.Errorf("table %s does not exist", table))
		}
		for _, c := range cols {
			if _, ok := existing[c.name]; ok {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s NULL",
				pgx.Identifier{table}.Sanitize(), pgx.Identifier{c.name}.Sanitize(), c.sqlType)
			if _, err := db.pool.Exec(ctx, stmt); err != nil {
				return wrap("add column "+table+"."+c.name, err)
			}
			db.logger.Info("added column", zap.String("table", table), zap.String("column", c.name), zap.String("type", c.sqlType))
		}
	}
	return nil
}

func (db *Database) columns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := db.pool.Query(ctx, `
	SELECT column_name
	FROM information_schema.columns
	WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out, nil
}
