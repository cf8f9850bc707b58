// Package file implements a read-only data source over delimited and
// fixed-width text objects held in object storage. Each object under a
// prefix is one table; every column is typed VARCHAR.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"go.uber.org/zap"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/internal/source"
	"github.com/arkilian/metaquery/internal/storage"
	"github.com/arkilian/metaquery/pkg/types"
)

// SnappyExtension marks objects compressed with the snappy framing format.
const SnappyExtension = ".sz"

// Format is the text layout of the objects.
type Format int

const (
	// FormatCSV is delimited text parsed with RFC 4180 quoting rules.
	FormatCSV Format = iota
	// FormatFixedWidth is one record per line, split by column widths.
	FormatFixedWidth
)

func (f Format) String() string {
	if f == FormatFixedWidth {
		return "fixed-width"
	}
	return "csv"
}

// ParseFormat parses "csv" or "fixed-width".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "fixed-width", "fixedwidth", "fixed":
		return FormatFixedWidth, nil
	}
	return FormatCSV, fmt.Errorf("file: unknown format %q", s)
}

// Options describes how objects are parsed.
type Options struct {
	Format Format

	// Delimiter separates CSV fields. Zero means ','.
	Delimiter rune

	// Header indicates the first line holds column names. Without it columns
	// are named A, B, C, ...
	Header bool

	// Widths are the fixed-width column widths, in characters.
	Widths []int

	// Extension restricts discovery to objects with this extension, ignoring
	// a trailing SnappyExtension. Empty accepts every object.
	Extension string

	// Consistency decides what happens to rows of the wrong width.
	Consistency data.Consistency

	// Concurrency bounds parallel object stats during discovery.
	Concurrency int
}

// Validate checks that the options describe a readable layout.
func (o Options) Validate() error {
	if o.Format != FormatFixedWidth {
		return nil
	}
	if len(o.Widths) == 0 {
		return fmt.Errorf("file: fixed-width format needs column widths")
	}
	for i, w := range o.Widths {
		if w <= 0 {
			return fmt.Errorf("file: width %d of column %d must be positive", w, i+1)
		}
	}
	return nil
}

// DataContext serves the objects under a storage prefix as tables of a
// single schema.
type DataContext struct {
	store      storage.ObjectStorage
	schemaName string
	prefix     string
	opts       Options
	cache      *source.SchemaCache
	logger     *zap.Logger

	mu      sync.RWMutex
	objects map[string]string // table name -> object path
}

// Option configures a DataContext.
type Option func(*DataContext)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *DataContext) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a file source. Discovery is deferred until Schemas is called.
func New(store storage.ObjectStorage, schemaName, prefix string, opts Options, options ...Option) (*DataContext, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	d := &DataContext{
		store:      store,
		schemaName: schemaName,
		prefix:     prefix,
		opts:       opts,
		logger:     zap.NewNop(),
	}
	for _, o := range options {
		o(d)
	}
	d.cache = source.NewSchemaCache(d.discover, nil)
	return d, nil
}

// Schemas returns the discovered schema.
func (d *DataContext) Schemas(ctx context.Context) ([]*types.Schema, error) {
	return d.cache.Schemas(ctx)
}

// Refresh lists the prefix again.
func (d *DataContext) Refresh(ctx context.Context) error {
	return d.cache.Refresh(ctx)
}

func (d *DataContext) discover(ctx context.Context) ([]*types.Schema, error) {
	paths, err := d.store.ListObjects(ctx, d.prefix)
	if err != nil {
		return nil, fmt.Errorf("file: list %q: %w", d.prefix, err)
	}
	var objects []string
	for _, p := range paths {
		if d.accepts(p) {
			objects = append(objects, p)
		}
	}

	stats, err := storage.StatAll(ctx, d.store, objects, d.opts.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("file: stat objects: %w", err)
	}

	schema := types.NewSchema(d.schemaName)
	byTable := make(map[string]string, len(objects))
	for _, p := range objects {
		names, err := d.columnNames(ctx, p)
		if err != nil {
			return nil, err
		}
		table := schema.AddTable(d.tableName(p), types.TableTypeTable)
		byTable[table.Name] = p
		table.Remarks = p
		if info, ok := stats.Objects[p]; ok {
			table.Remarks = fmt.Sprintf("%s (%d bytes)", p, info.Size)
		} else if statErr := stats.Errors[p]; statErr != nil {
			d.logger.Warn("stat failed", zap.String("object", p), zap.Error(statErr))
		}
		for _, name := range names {
			table.AddColumn(types.Column{
				Name:       name,
				Type:       types.ColumnTypeVarchar,
				NativeType: "VARCHAR",
				Nullable:   true,
			})
		}
	}

	d.mu.Lock()
	d.objects = byTable
	d.mu.Unlock()

	d.logger.Debug("discovered file tables",
		zap.String("schema", d.schemaName),
		zap.String("prefix", d.prefix),
		zap.Int("tables", len(schema.Tables)))
	return []*types.Schema{schema}, nil
}

func (d *DataContext) accepts(objectPath string) bool {
	if d.opts.Extension == "" {
		return true
	}
	p := strings.TrimSuffix(objectPath, SnappyExtension)
	return strings.EqualFold(path.Ext(p), d.opts.Extension)
}

// tableName strips the prefix and extensions from an object path.
func (d *DataContext) tableName(objectPath string) string {
	name := strings.TrimPrefix(objectPath, d.prefix)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimSuffix(name, SnappyExtension)
	return strings.TrimSuffix(name, path.Ext(name))
}

// columnNames reads the first record of an object to name its columns.
func (d *DataContext) columnNames(ctx context.Context, objectPath string) ([]string, error) {
	if d.opts.Format == FormatFixedWidth && !d.opts.Header {
		return letterNames(len(d.opts.Widths)), nil
	}

	rc, r, err := d.open(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	first, _, err := r.Read()
	if errors.Is(err, io.EOF) {
		if d.opts.Format == FormatFixedWidth {
			return letterNames(len(d.opts.Widths)), nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read header of %s: %w", objectPath, err)
	}
	if d.opts.Format == FormatFixedWidth && len(first) > len(d.opts.Widths) {
		first = first[:len(d.opts.Widths)]
	}
	if !d.opts.Header {
		return letterNames(len(first)), nil
	}

	names := make([]string, len(first))
	for i, v := range first {
		names[i] = strings.TrimSpace(fmt.Sprint(v))
		if names[i] == "" {
			names[i] = letterName(i)
		}
	}
	for i := len(first); i < len(d.opts.Widths); i++ {
		names = append(names, letterName(i))
	}
	return names, nil
}

// open returns the object's closer and an unaligned record reader.
func (d *DataContext) open(ctx context.Context, objectPath string) (io.Closer, recordReader, error) {
	rc, err := d.store.Open(ctx, objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
				fmt.Sprintf("object %s no longer exists", objectPath))
		}
		return nil, nil, qerrors.NewIOError(qerrors.CodeReadFailed, "open "+objectPath, err)
	}

	var r io.Reader = rc
	if strings.HasSuffix(objectPath, SnappyExtension) {
		r = snappy.NewReader(rc)
	}

	if d.opts.Format == FormatFixedWidth {
		fw := newFixedWidthReader(r, d.opts.Widths, d.opts.Consistency == data.Strict)
		if d.opts.Header {
			fw.exempt = 1
		}
		return rc, fw, nil
	}
	return rc, newCSVReader(r, d.opts.Delimiter), nil
}

// Materialize streams the records of the table's object.
func (d *DataContext) Materialize(ctx context.Context, req source.Request) (data.DataSet, error) {
	objectPath, err := d.objectPath(ctx, req.Table)
	if err != nil {
		return nil, err
	}

	rc, raw, err := d.open(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	if d.opts.Header {
		if _, _, err := raw.Read(); err != nil && !errors.Is(err, io.EOF) {
			rc.Close()
			return nil, err
		}
	}
	reader := &aligned{r: raw, columns: len(req.Table.Columns), consistency: d.opts.Consistency}

	delivered := 0
	return data.NewStreamDataSet(source.ColumnHeader(req.Columns), func() ([]interface{}, error) {
		if req.Exhausted(delivered) {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, _, err := reader.Read()
		if err != nil {
			return nil, err
		}
		delivered++
		return source.Project(req.Table, req.Columns, values), nil
	}, rc.Close), nil
}

// objectPath resolves a table of the current snapshot back to its object.
func (d *DataContext) objectPath(ctx context.Context, table *types.Table) (string, error) {
	schemas, err := d.cache.Schemas(ctx)
	if err != nil {
		return "", err
	}
	current, ok := source.FindTable(schemas, d.schemaName, table.Name)
	if !ok {
		return "", qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
			fmt.Sprintf("no such table: %s", table.QualifiedName()))
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.objects[current.Name], nil
}

// letterName returns the spreadsheet-style name of a zero-based column index.
func letterName(i int) string {
	var b []byte
	for i >= 0 {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
	}
	return string(b)
}

func letterNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = letterName(i)
	}
	return names
}
