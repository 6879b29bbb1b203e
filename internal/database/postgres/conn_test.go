package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/vtapi/internal/database"
	"github.com/koustreak/vtapi/internal/errs"
)

func TestConn_NotConnected(t *testing.T) {
	ctx := context.Background()
	c := NewConn(database.ConnInfo{DSN: "postgres://localhost/vtapi"}, nil)

	assert.False(t, c.IsConnected(ctx))
	assert.Empty(t, c.LastError())

	err := c.Execute(ctx, "SELECT 1", nil)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.NotEmpty(t, c.LastError())

	n, err := c.Fetch(ctx, "SELECT 1", nil, database.NewRowSet(nil, nil))
	assert.Equal(t, -1, n)
	assert.Error(t, err)

	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, "public", c.DefaultSchema())
}

func TestConn_InvalidDSN(t *testing.T) {
	c := NewConn(database.ConnInfo{DSN: "postgres://localhost:notaport/vtapi"}, nil)
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
	assert.NotEmpty(t, c.LastError())
}

func TestArgs(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	params := database.NewParams()
	params.Add(database.CharValue('x'))
	params.Add(database.TimestampValue(ts))
	params.Add(database.PointValue(database.Point{X: 1, Y: 2}))
	params.Add(database.BoxValue(database.Box{High: database.Point{X: 2, Y: 3}}))
	params.Add(database.SeqtypeValue(database.SeqImages))
	params.Add(database.IntervalEventVectorValue([]database.IntervalEvent{{GroupID: 1}}))
	params.Add(database.NullValue())
	params.Add(database.BlobValue([]byte{1}))

	got := args(params)
	require.Len(t, got, 8)
	assert.Equal(t, "x", got[0])
	assert.Equal(t, ts.UTC(), got[1])
	assert.Equal(t, pgtype.Point{P: pgtype.Vec2{X: 1, Y: 2}, Valid: true}, got[2])
	assert.Equal(t, pgtype.Box{P: [2]pgtype.Vec2{{X: 2, Y: 3}, {X: 0, Y: 0}}, Valid: true}, got[3])
	assert.Equal(t, "images", got[4])
	assert.Equal(t, `{"(1,0,f,\"(0,0),(0,0)\",0,\"\\\\x\")"}`, got[5])
	assert.Nil(t, got[6])
	assert.Equal(t, []byte{1}, got[7])
}

func TestNormalize(t *testing.T) {
	box := pgtype.Box{P: [2]pgtype.Vec2{{X: 1, Y: 1}, {X: 0, Y: 0}}, Valid: true}
	assert.Equal(t, database.Box{High: database.Point{X: 1, Y: 1}}, normalize(box, pgtype.BoxOID))
	assert.Nil(t, normalize(pgtype.Point{}, pgtype.PointOID))
	assert.Equal(t, "x", normalize('x', pgtype.QCharOID))
	assert.Equal(t, int32(5), normalize(int32(5), pgtype.Int4OID))
	assert.Equal(t,
		[]any{database.Point{X: 1, Y: 2}, nil},
		normalize([]any{pgtype.Point{P: pgtype.Vec2{X: 1, Y: 2}, Valid: true}, nil}, 0))

	var n pgtype.Numeric
	require.NoError(t, n.Scan("1.25"))
	assert.Equal(t, 1.25, normalize(n, pgtype.NumericOID))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"connection class", &pgconn.PgError{Code: "08006"}, errs.ErrKindConnectionFailed},
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax error"}, errs.ErrKindQueryFailed},
		{"unique", &pgconn.PgError{Code: "23505"}, errs.ErrKindQueryFailed},
		{"privilege", &pgconn.PgError{Code: "42501"}, errs.ErrKindPermissionDenied},
		{"auth", &pgconn.PgError{Code: "28P01"}, errs.ErrKindPermissionDenied},
		{"canceled", &pgconn.PgError{Code: "57014"}, errs.ErrKindTimeout},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "op")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, mapError(nil, "op"))
}

func TestBuildCatalog(t *testing.T) {
	cat := buildCatalog([]pgType{
		{OID: 1007, Name: "_int4", Category: 'A', Length: -1, Elem: 23},
		{OID: 23, Name: "int4", Category: 'N', Length: 4},
		{OID: 701, Name: "float8", Category: 'N', Length: 8},
		{OID: 603, Name: "box", Category: 'G', Length: 32},
		{OID: 17, Name: "bytea", Category: 'U', Length: -1},
		{OID: 2205, Name: "regclass", Category: 'N', Length: 4},
		{OID: 16400, Name: "vtevent", Category: 'C', Length: -1},
		{OID: 16399, Name: "_vtevent", Category: 'A', Length: -1, Elem: 16400},
		{OID: 16390, Name: "seqtype", Category: 'E', Length: 4},
	})
	assert.Equal(t, 9, cat.Len())

	def, ok := cat.Lookup(1007)
	require.True(t, ok)
	assert.Equal(t, database.CategoryArray, def.Category)
	assert.Equal(t, database.CategoryInt, def.ElemCategory)
	assert.Equal(t, 4, def.ElemLength)

	def, _ = cat.Lookup(701)
	assert.Equal(t, database.CategoryFloat, def.Category)
	assert.True(t, def.Flags.Has(database.FlagNumeric))

	def, _ = cat.Lookup(603)
	assert.Equal(t, database.CategoryGeoBox, def.Category)

	def, _ = cat.Lookup(17)
	assert.Equal(t, database.CategoryBlob, def.Category)

	def, _ = cat.Lookup(2205)
	assert.Equal(t, database.CategoryRefType, def.Category)

	def, _ = cat.Lookup(16399)
	assert.Equal(t, database.CategoryCompositeEvent, def.ElemCategory)

	def, _ = cat.Lookup(16390)
	assert.Equal(t, database.CategoryEnumSeqtype, def.Category)
	assert.True(t, def.Flags.Has(database.FlagUserDefined))

	assert.ElementsMatch(t, []string{"cvmat", "inouttype", "pstate", "pstatus"}, cat.MissingUserTypes())
}
