package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/metaquery/internal/config"
	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/internal/source/memory"
	"github.com/arkilian/metaquery/internal/update"
	"github.com/arkilian/metaquery/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	exports := filepath.Join(dir, "storage", "exports")
	require.NoError(t, os.MkdirAll(exports, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(exports, "people.csv"),
		[]byte("id,name\n1,ann\n2,bob\n3,cy\n"), 0644))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, item TEXT);
		INSERT INTO orders VALUES (1, 'apple'), (2, 'pear');`)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Sources = []config.SourceConfig{
		{Name: "files", Kind: config.KindCSV, Prefix: "exports", Header: true},
		{Name: "scratch", Kind: config.KindMemory},
		{Name: "shop", Kind: config.KindSQLite, DSN: dsn},
	}
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Stop(context.Background()) })
	return a
}

func query(t *testing.T, a *App, fn func(b *ast.Builder)) []string {
	t.Helper()
	ctx := context.Background()
	b, err := a.Query(ctx)
	require.NoError(t, err)
	fn(b)
	q, err := b.Build()
	require.NoError(t, err)
	ds, err := a.Execute(ctx, q)
	require.NoError(t, err)
	rows, err := data.ToRows(ds)
	require.NoError(t, err)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.String()
	}
	return out
}

func loadNotes(t *testing.T, a *App) {
	t.Helper()
	dc, ok := a.Source("scratch")
	require.True(t, ok)
	_, err := dc.(*memory.DataContext).Load("notes", []types.Column{
		{Name: "person", Type: types.ColumnTypeVarchar},
		{Name: "note", Type: types.ColumnTypeVarchar, Nullable: true},
	}, [][]interface{}{{"1", "likes tea"}, {"2", "vip"}})
	require.NoError(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(config.DefaultConfig())
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestApp_CombinesSources(t *testing.T) {
	a := startApp(t, testConfig(t))

	schemas, err := a.Schemas(context.Background())
	require.NoError(t, err)
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"files", "main", "scratch", types.InformationSchemaName}, names)

	loadNotes(t, a)
	rows := query(t, a, func(b *ast.Builder) {
		b.FromAs("files.people", "p").Join(ast.JoinInner, "scratch.notes", "n", "p.id", "n.person").
			Select("p.name", "n.note").OrderBy("p.name", false)
	})
	assert.Equal(t, []string{"Row[values=[ann, likes tea]]", "Row[values=[bob, vip]]"}, rows)

	rows = query(t, a, func(b *ast.Builder) {
		b.From("orders").Select("item").Where("id", ast.OpEquals, 2)
	})
	assert.Equal(t, []string{"Row[values=[pear]]"}, rows)

	summary := a.Stats().Summary()
	assert.Equal(t, int64(2), summary.Queries)
	assert.Equal(t, int64(3), summary.RowsServed)
}

func TestApp_Updater(t *testing.T) {
	a := startApp(t, testConfig(t))
	ctx := context.Background()
	loadNotes(t, a)

	_, err := a.Updater(ctx, "files")
	assert.Equal(t, qerrors.ErrCategoryUnsupported, qerrors.GetCategory(err))

	_, err = a.Updater(ctx, "nowhere")
	assert.Equal(t, qerrors.CodeUnresolvedSchema, qerrors.GetCode(err))

	u, err := a.Updater(ctx, "scratch")
	require.NoError(t, err)
	schemas, err := a.Schemas(ctx)
	require.NoError(t, err)
	var notes *types.Table
	for _, s := range schemas {
		if s.Name == "scratch" {
			notes, _ = s.Table("notes")
		}
	}
	require.NotNil(t, notes)
	person, _ := notes.Column("person")

	n, err := u.Update(ctx, update.Update{
		Table: notes,
		Set:   map[string]interface{}{"note": "gold"},
		Where: []*ast.FilterItem{ast.Compare(ast.ColumnItem(person), ast.OpEquals, "2")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows := query(t, a, func(b *ast.Builder) {
		b.From("scratch.notes").Select("note").OrderBy("person", false)
	})
	assert.Equal(t, []string{"Row[values=[likes tea]]", "Row[values=[gold]]"}, rows)
}

func TestApp_TracksQueriesUntilClosed(t *testing.T) {
	a := startApp(t, testConfig(t))
	ctx := context.Background()

	b, err := a.Query(ctx)
	require.NoError(t, err)
	q, err := b.From("files.people").Build()
	require.NoError(t, err)

	ds, err := a.Execute(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.shutdown.InFlightCount())
	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())
	assert.Equal(t, int64(0), a.shutdown.InFlightCount())

	require.NoError(t, a.Stop(ctx))
	_, err = a.Execute(ctx, q)
	assert.ErrorContains(t, err, "shutting down")
	require.NoError(t, a.Stop(ctx), "stopping twice is a no-op")
}

func TestApp_StartTwice(t *testing.T) {
	a := startApp(t, testConfig(t))
	assert.ErrorContains(t, a.Start(context.Background()), "already running")
}

func TestApp_StartFailsOnBrokenSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources = append(cfg.Sources, config.SourceConfig{Name: "broken", Kind: config.KindMySQL, DSN: "not a dsn"})

	a, err := New(cfg)
	require.NoError(t, err)
	err = a.Start(context.Background())
	assert.ErrorContains(t, err, "source broken")
	assert.True(t, a.shutdown.IsShuttingDown(), "partially opened resources are released")
}

func TestApp_NotRunning(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	_, err = a.Query(context.Background())
	assert.ErrorContains(t, err, "not running")
	_, err = a.Updater(context.Background(), "scratch")
	assert.ErrorContains(t, err, "not running")
}
