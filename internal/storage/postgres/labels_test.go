package postgres

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// The lock statement must accept a label id as pgx sends it, without a server.
func TestLockLabelEncodesInt64ID(t *testing.T) {
	if !strings.Contains(lockLabelSQL, "$1::bigint") {
		t.Fatalf("lock parameter is not bigint: %s", lockLabelSQL)
	}
	sd := &pgconn.StatementDescription{SQL: lockLabelSQL, ParamOIDs: []uint32{pgtype.Int8OID}}
	var eqb pgx.ExtendedQueryBuilder
	if err := eqb.Build(pgtype.NewMap(), sd, []any{int64(7)}); err != nil {
		t.Fatalf("encode label id: %v", err)
	}
	if len(eqb.ParamValues) != 1 || len(eqb.ParamValues[0]) == 0 {
		t.Fatalf("param values = %v", eqb.ParamValues)
	}
}
