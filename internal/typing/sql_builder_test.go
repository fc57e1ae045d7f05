package typing

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arwahdevops/dbtyper/internal/config"
	"github.com/arwahdevops/dbtyper/internal/naming"
)

func builderFor(t *testing.T, dialect string) *SQLBuilder {
	t.Helper()
	d, err := NewDialect(dialect, "typing_internal")
	require.NoError(t, err)
	return NewSQLBuilder(d)
}

func mustStream(t *testing.T, decl config.CatalogStream) StreamConfig {
	t.Helper()
	streams, err := BuildStreams([]config.CatalogStream{decl}, naming.NewTransformer(63), "typing_internal")
	require.NoError(t, err)
	return streams[0]
}

func postsStream(t *testing.T) StreamConfig {
	return mustStream(t, config.CatalogStream{
		Namespace: "blog",
		Name:      "posts",
		SyncMode:  config.SyncModeAppend,
		JSONSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"title": map[string]any{"type": "string"}},
		},
	})
}

func ordersStream(t *testing.T) StreamConfig {
	return mustStream(t, config.CatalogStream{
		Namespace:      "shop",
		Name:           "orders",
		SyncMode:       config.SyncModeAppendDedup,
		PrimaryKey:     []string{"id"},
		DeletionMarker: "_deleted",
		JSONSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":       map[string]any{"type": "integer"},
				"sku":      map[string]any{"type": "string"},
				"total":    map[string]any{"type": "number"},
				"paid":     map[string]any{"type": "boolean"},
				"_deleted": map[string]any{"type": "boolean"},
			},
		},
	})
}

func TestSQLiteAppendStreamGolden(t *testing.T) {
	b := builderFor(t, "sqlite")
	s := postsStream(t)
	script := Concat(
		b.CreateRawTable(s),
		b.CreateFinalTable(s, "", false),
		b.UpdateTable(s, "", UpdateIncremental, nil),
	).String()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sqlite_append_stream", []byte(script))
}

func TestUpdateTableDedup(t *testing.T) {
	s := ordersStream(t)
	for _, dialect := range []string{"postgres", "mysql", "sqlite"} {
		t.Run(dialect, func(t *testing.T) {
			b := builderFor(t, dialect)
			sql := b.UpdateTable(s, "", UpdateIncremental, nil)
			require.Len(t, sql.Transactions, 1, "update must be atomic")

			stmts := sql.Transactions[0]
			offset := 0
			if dialect == "mysql" {
				assert.True(t, strings.HasPrefix(stmts[0], "SET SESSION sql_mode"))
				offset = 1
			}
			require.Len(t, stmts, offset+3)
			assert.True(t, strings.HasPrefix(stmts[offset], "DELETE FROM "))
			assert.True(t, strings.HasPrefix(stmts[offset+1], "INSERT INTO "))
			assert.True(t, strings.HasPrefix(stmts[offset+2], "UPDATE "))

			q := b.Dialect().QuoteIdentifier
			ts := b.Dialect().SortableTimestamp(q("_extracted_at"))
			ranking := "ORDER BY " + ts + " DESC, " + q("_raw_id") + " DESC"
			assert.Contains(t, stmts[offset], ranking)
			if dialect == "sqlite" {
				assert.Contains(t, stmts[offset], `strftime('%Y-%m-%dT%H:%M:%fZ', "_new"."_extracted_at") > strftime(`)
			}
			assert.Contains(t, stmts[offset+1], "NOT "+q("_new")+"."+q("_is_tombstone"))
			assert.Contains(t, stmts[offset+1], "failed to cast value to INTEGER")
			assert.Contains(t, stmts[offset+1], "failed to cast value to NUMBER")
			assert.Contains(t, stmts[offset+1], "failed to cast value to BOOLEAN")
			assert.NotContains(t, stmts[offset+1], "failed to cast value to STRING")
		})
	}
}

func TestUpdateTableWithoutDeletionMarker(t *testing.T) {
	s := ordersStream(t)
	s.DeletionMarker = ""
	sql := builderFor(t, "postgres").UpdateTable(s, "", UpdateIncremental, nil)
	assert.Contains(t, sql.Transactions[0][1], `FALSE AS "_is_tombstone"`)
}

func TestUpdateTableModes(t *testing.T) {
	b := builderFor(t, "postgres")
	s := postsStream(t)
	ts := time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC)

	full := b.UpdateTable(s, TmpTableSuffix, UpdateFull, nil).Transactions[0]
	assert.Contains(t, full[0], `INSERT INTO "blog"."posts_tdd_tmp"`)
	assert.NotContains(t, full[0], "WHERE")
	assert.Contains(t, full[1], `WHERE "_loaded_at" IS NULL`)

	incr := b.UpdateTable(s, "", UpdateIncremental, &ts).Transactions[0]
	bound := `"_extracted_at" >= CAST('2024-03-10T05:00:00.000000Z' AS timestamp with time zone)`
	assert.Contains(t, incr[0], bound)
	assert.Contains(t, incr[1], bound)

	assert.Equal(t, "full", UpdateFull.String())
	assert.Equal(t, "incremental", UpdateIncremental.String())
}

func TestSoftResetTransactions(t *testing.T) {
	s := ordersStream(t)
	testCases := []struct {
		dialect string
		txs     int
	}{
		{"postgres", 4},
		{"sqlite", 4},
		{"mysql", 5},
	}
	for _, tc := range testCases {
		t.Run(tc.dialect, func(t *testing.T) {
			b := builderFor(t, tc.dialect)
			sql := b.SoftReset(s)
			require.Len(t, sql.Transactions, tc.txs)

			create := sql.Transactions[0]
			require.Len(t, create, 2)
			assert.True(t, strings.HasPrefix(create[0], "DROP TABLE IF EXISTS"))
			assert.Contains(t, create[1], "orders_tdd_tmp")
			assert.NotContains(t, create[1], "IF NOT EXISTS")
		})
	}

	mysql := builderFor(t, "mysql").SoftReset(s)
	assert.Equal(t, "RENAME TABLE `shop`.`orders` TO `shop`.`orders_tdd_old`, `shop`.`orders_tdd_tmp` TO `shop`.`orders`",
		mysql.Transactions[3][0])
	assert.Equal(t, []string{"DROP TABLE IF EXISTS `shop`.`orders_tdd_old`"}, mysql.Transactions[4])

	pg := builderFor(t, "postgres").SoftReset(s)
	assert.Equal(t, []string{
		`DROP TABLE IF EXISTS "shop"."orders" CASCADE`,
		`ALTER TABLE "shop"."orders_tdd_tmp" RENAME TO "orders"`,
	}, pg.Transactions[2])
	assert.Contains(t, pg.Transactions[3][0], "CREATE INDEX IF NOT EXISTS")

	appendOnly := builderFor(t, "postgres").SoftReset(postsStream(t))
	assert.Len(t, appendOnly.Transactions, 3, "append streams have no index")
}

func TestSoftResetLongStreamName(t *testing.T) {
	require.LessOrEqual(t, len(TmpTableSuffix), naming.TableSuffixReserve)
	require.LessOrEqual(t, len(oldTableSuffix), naming.TableSuffixReserve)

	decl := config.CatalogStream{
		Namespace: "shop",
		Name:      strings.Repeat("fulfilment_event_", 5),
		SyncMode:  config.SyncModeAppend,
		JSONSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"kind": map[string]any{"type": "string"}},
		},
	}
	for _, dialect := range []string{"postgres", "mysql", "sqlite"} {
		t.Run(dialect, func(t *testing.T) {
			b := builderFor(t, dialect)
			limit := b.Dialect().Capabilities().MaxIdentifierLength
			streams, err := BuildStreams([]config.CatalogStream{decl}, naming.NewTransformer(limit), "typing_internal")
			require.NoError(t, err)
			s := streams[0]

			final := s.ID.FinalName
			for _, work := range []string{final + TmpTableSuffix, final + oldTableSuffix} {
				assert.LessOrEqual(t, len(work), limit, "work table %q would be truncated", work)
			}

			q := b.Dialect().QuoteIdentifier
			create := b.SoftReset(s).Transactions[0]
			assert.Contains(t, create[0], q(final+TmpTableSuffix))
			assert.NotContains(t, create[0], q(final)+" ")
		})
	}
}

func TestFinalIndex(t *testing.T) {
	s := ordersStream(t)
	b := builderFor(t, "postgres")

	name := b.IndexName(s)
	assert.Regexp(t, regexp.MustCompile(`^idx_[0-9a-f]{8}$`), name)
	assert.Equal(t, name, b.IndexName(s))

	idx := b.CreateFinalIndex(s)
	require.Len(t, idx.Transactions, 1)
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "`+name+`" ON "shop"."orders" ("id", "_extracted_at")`, idx.Transactions[0][0])
	assert.True(t, b.CreateFinalIndex(postsStream(t)).IsEmpty())

	my := builderFor(t, "mysql")
	assert.True(t, my.CreateFinalIndex(s).IsEmpty())
	ddl := my.CreateFinalTable(s, "", false).Transactions[0][0]
	assert.Contains(t, ddl, "INDEX `"+name+"` (`id`, `_extracted_at`)")

	strPK := mustStream(t, config.CatalogStream{
		Name:       "codes",
		SyncMode:   config.SyncModeAppendDedup,
		PrimaryKey: []string{"code"},
		JSONSchema: map[string]any{"properties": map[string]any{"code": map[string]any{"type": "string"}}},
	})
	assert.Contains(t, my.CreateFinalTable(strPK, "", false).Transactions[0][0], "(`code`(255), `_extracted_at`)")
}

func TestCreateFinalTableColumns(t *testing.T) {
	b := builderFor(t, "postgres")
	s := ordersStream(t)
	cols := b.ExpectedFinalColumns(s)

	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"_raw_id", "_extracted_at", "_meta", "_deleted", "id", "paid", "sku", "total"}, names)
	assert.Equal(t, "bigint", cols[4].Type)
	assert.Equal(t, "numeric", cols[7].Type)

	ddl := b.CreateFinalTable(s, "", false).Transactions[0][0]
	assert.Contains(t, ddl, `"_meta" jsonb NOT NULL`)
	assert.Contains(t, ddl, `"id" bigint,`)
}

func TestRawTableStatements(t *testing.T) {
	b := builderFor(t, "postgres")
	s := ordersStream(t)

	assert.Contains(t, b.CreateRawTable(s).Transactions[0][0],
		`CREATE TABLE IF NOT EXISTS "typing_internal"."shop_raw__stream_orders"`)
	assert.Equal(t, `ALTER TABLE "typing_internal"."shop_raw__stream_orders" ADD COLUMN "_meta" jsonb NULL`,
		b.AddRawMetaColumn(s).Transactions[0][0])

	mig := b.MigrateLegacyRawTable(s)
	require.Len(t, mig.Transactions, 2)
	insert := mig.Transactions[1][0]
	assert.Contains(t, insert, `FROM "shop"."_raw_orders"`)
	assert.Contains(t, insert, `CAST("shop"."_raw_orders"."payload" AS jsonb)`)
	assert.Contains(t, insert, `WHERE NOT EXISTS`)
}

func TestNamespaceAndSafeCast(t *testing.T) {
	pg := builderFor(t, "postgres")
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "shop"`, pg.CreateNamespace("shop").Transactions[0][0])
	assert.True(t, pg.CreateNamespace("").IsEmpty())
	assert.Len(t, pg.PrepareSafeCast("typing_internal").Transactions[0], 8)

	lite := builderFor(t, "sqlite")
	assert.True(t, lite.CreateNamespace("shop").IsEmpty(), "sqlite has no namespaces")
	assert.True(t, lite.PrepareSafeCast("typing_internal").IsEmpty())

	my := builderFor(t, "mysql")
	assert.Equal(t, "DROP DATABASE IF EXISTS `shop`", my.DropNamespace("shop").Transactions[0][0])
	assert.Equal(t, "DROP TABLE IF EXISTS `shop`.`x`", my.DropTable("shop", "x").Transactions[0][0])
}

func TestCountTypingErrors(t *testing.T) {
	s := ordersStream(t)
	assert.Equal(t,
		`SELECT COUNT(*) AS "typing_errors" FROM "shop"."orders" WHERE ("_meta" -> 'errors') <> '{}'::jsonb`,
		builderFor(t, "postgres").CountTypingErrors(s))
	assert.Equal(t,
		`SELECT COUNT(*) AS "typing_errors" FROM "shop__orders" WHERE COALESCE(json_extract("_meta", '$.errors') <> '{}', 0)`,
		builderFor(t, "sqlite").CountTypingErrors(s))
}

func TestStateTable(t *testing.T) {
	ddl := builderFor(t, "sqlite").CreateStateTable("typing_internal").Transactions[0][0]
	assert.Contains(t, ddl, `"typing_internal___destination_state"`)
	assert.Contains(t, ddl, `PRIMARY KEY ("namespace", "name")`)
}
