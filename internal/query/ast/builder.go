package ast

import (
	"fmt"
	"strings"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/pkg/types"
)

// Builder constructs a single Query against a schema snapshot. Names are
// resolved as they are added, so an unknown table or column is reported by
// Build rather than during execution. A Builder is spent after Build.
type Builder struct {
	schemas []*types.Schema
	query   *Query
	errs    []error
	built   bool
}

// NewBuilder creates a builder resolving names against the given schemas.
// Unqualified table names are searched in schema order, skipping the
// information schema unless no other schema has the table.
func NewBuilder(schemas ...*types.Schema) *Builder {
	return &Builder{
		schemas: schemas,
		query:   NewQuery(),
	}
}

// Build returns the constructed query, or the first resolution error.
func (b *Builder) Build() (*Query, error) {
	if b.built {
		return nil, qerrors.NewQueryError(qerrors.CodeBuilderConsumed, "query builder already used")
	}
	b.built = true
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.query.From) == 0 {
		return nil, qerrors.NewQueryError(qerrors.CodeInvalidQuery, "query has no FROM item")
	}
	if len(b.query.Select) == 0 {
		b.selectAll()
	}
	return b.query, nil
}

// Err returns the first error recorded so far.
func (b *Builder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}
	return b.errs[0]
}

func (b *Builder) fail(err error) *Builder {
	b.errs = append(b.errs, err)
	return b
}

// From adds a table to FROM. The name may be "table" or "schema.table".
func (b *Builder) From(table string) *Builder {
	return b.FromAs(table, "")
}

// FromAs adds an aliased table to FROM.
func (b *Builder) FromAs(table, alias string) *Builder {
	t, err := b.resolveTable(table)
	if err != nil {
		return b.fail(err)
	}
	return b.FromTable(t, alias)
}

// FromTable adds a resolved table to FROM.
func (b *Builder) FromTable(t *types.Table, alias string) *Builder {
	b.query.From = append(b.query.From, TableItem(t, alias))
	return b
}

// Join replaces the last FROM item with a join of it and table. on lists
// column pairs: left1, right1, left2, right2, ...
func (b *Builder) Join(jt JoinType, table, alias string, on ...string) *Builder {
	if len(b.query.From) == 0 {
		return b.fail(qerrors.NewQueryError(qerrors.CodeInvalidQuery, "join without a preceding FROM item"))
	}
	if len(on) == 0 || len(on)%2 != 0 {
		return b.fail(qerrors.NewQueryError(qerrors.CodeInvalidQuery,
			fmt.Sprintf("join on %s needs column pairs, got %d columns", table, len(on))))
	}
	t, err := b.resolveTable(table)
	if err != nil {
		return b.fail(err)
	}
	left := b.query.From[len(b.query.From)-1]
	right := TableItem(t, alias)

	var leftOn, rightOn []*SelectItem
	for i := 0; i < len(on); i += 2 {
		l, err := resolveIn(left.BaseItems(), on[i])
		if err != nil {
			return b.fail(err)
		}
		r, err := resolveIn([]*FromItem{right}, on[i+1])
		if err != nil {
			return b.fail(err)
		}
		leftOn = append(leftOn, l)
		rightOn = append(rightOn, r)
	}
	b.query.From[len(b.query.From)-1] = JoinItem(jt, left, right, leftOn, rightOn)
	return b
}

// Col resolves a column reference ("col", "alias.col" or "table.col")
// against the FROM items added so far. On failure the error is recorded and
// a placeholder constant item is returned so chained calls stay safe.
func (b *Builder) Col(ref string) *SelectItem {
	item, err := resolveIn(b.query.BaseFromItems(), ref)
	if err != nil {
		b.fail(err)
		return ConstantItem(nil)
	}
	return item
}

// Select adds column references to SELECT.
func (b *Builder) Select(refs ...string) *Builder {
	for _, ref := range refs {
		if ref == "*" {
			b.selectAll()
			continue
		}
		b.query.Select = append(b.query.Select, b.Col(ref))
	}
	return b
}

// SelectAll adds every column of every FROM table.
func (b *Builder) SelectAll() *Builder {
	b.selectAll()
	return b
}

func (b *Builder) selectAll() {
	for _, f := range b.query.BaseFromItems() {
		for _, c := range f.Table.Columns {
			b.query.Select = append(b.query.Select, QualifiedColumnItem(c, f.Alias))
		}
	}
}

// SelectAs adds an aliased column reference.
func (b *Builder) SelectAs(ref, alias string) *Builder {
	b.query.Select = append(b.query.Select, b.Col(ref).As(alias))
	return b
}

// SelectFunction adds fn(ref). ref "*" is only valid for COUNT.
func (b *Builder) SelectFunction(fn FunctionType, ref, alias string, params ...interface{}) *Builder {
	item, err := b.functionItem(fn, ref, params)
	if err != nil {
		return b.fail(err)
	}
	b.query.Select = append(b.query.Select, item.As(alias))
	return b
}

// SelectCount adds COUNT(*).
func (b *Builder) SelectCount() *Builder {
	b.query.Select = append(b.query.Select, CountAll())
	return b
}

// SelectConstant adds a literal.
func (b *Builder) SelectConstant(v interface{}, alias string) *Builder {
	b.query.Select = append(b.query.Select, ConstantItem(v).As(alias))
	return b
}

// SelectItems adds prebuilt items.
func (b *Builder) SelectItems(items ...*SelectItem) *Builder {
	b.query.Select = append(b.query.Select, items...)
	return b
}

// Distinct enables duplicate elimination.
func (b *Builder) Distinct() *Builder {
	b.query.Distinct = true
	return b
}

// Where adds ref <op> operand to WHERE. Use WhereColumns for column-to-column
// comparisons.
func (b *Builder) Where(ref string, op OperatorType, operand interface{}) *Builder {
	b.query.Where = append(b.query.Where, Compare(b.Col(ref), op, operand))
	return b
}

// WhereColumns adds left <op> right to WHERE, comparing two columns.
func (b *Builder) WhereColumns(left string, op OperatorType, right string) *Builder {
	b.query.Where = append(b.query.Where, Compare(b.Col(left), op, b.Col(right)))
	return b
}

// WhereFilter adds prebuilt filters to WHERE.
func (b *Builder) WhereFilter(filters ...*FilterItem) *Builder {
	b.query.Where = append(b.query.Where, filters...)
	return b
}

// GroupBy adds column references to GROUP BY.
func (b *Builder) GroupBy(refs ...string) *Builder {
	for _, ref := range refs {
		b.query.GroupBy = append(b.query.GroupBy, b.Col(ref))
	}
	return b
}

// Having adds fn(ref) <op> operand to HAVING.
func (b *Builder) Having(fn FunctionType, ref string, op OperatorType, operand interface{}) *Builder {
	item, err := b.functionItem(fn, ref, nil)
	if err != nil {
		return b.fail(err)
	}
	b.query.Having = append(b.query.Having, Compare(item, op, operand))
	return b
}

// HavingFilter adds prebuilt filters to HAVING.
func (b *Builder) HavingFilter(filters ...*FilterItem) *Builder {
	b.query.Having = append(b.query.Having, filters...)
	return b
}

// OrderBy adds a column reference or a select alias to ORDER BY.
func (b *Builder) OrderBy(ref string, descending bool) *Builder {
	for _, s := range b.query.Select {
		if s.Alias != "" && s.Alias == ref {
			return b.OrderByItem(s, descending)
		}
	}
	return b.OrderByItem(b.Col(ref), descending)
}

// OrderByItem adds a prebuilt item to ORDER BY.
func (b *Builder) OrderByItem(item *SelectItem, descending bool) *Builder {
	b.query.OrderBy = append(b.query.OrderBy, &OrderByItem{Item: item, Descending: descending})
	return b
}

// Offset skips the first n result rows.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.fail(qerrors.NewQueryError(qerrors.CodeInvalidQuery, fmt.Sprintf("negative offset %d", n)))
	}
	b.query.Offset = n
	return b
}

// Limit caps the result at n rows.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 && n != Unbounded {
		return b.fail(qerrors.NewQueryError(qerrors.CodeInvalidQuery, fmt.Sprintf("negative limit %d", n)))
	}
	b.query.MaxRows = n
	return b
}

func (b *Builder) functionItem(fn FunctionType, ref string, params []interface{}) (*SelectItem, error) {
	if ref == "*" {
		if fn != FuncCount {
			return nil, qerrors.NewQueryError(qerrors.CodeInvalidQuery, fmt.Sprintf("%s(*) is not supported", fn))
		}
		return CountAll(), nil
	}
	item, err := resolveIn(b.query.BaseFromItems(), ref)
	if err != nil {
		return nil, err
	}
	return item.WithFunction(fn, params...), nil
}

func (b *Builder) resolveTable(name string) (*types.Table, error) {
	schemaName, tableName := "", name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		schemaName, tableName = name[:i], name[i+1:]
	}

	if schemaName != "" {
		for _, s := range b.schemas {
			if strings.EqualFold(s.Name, schemaName) {
				if t, ok := s.Table(tableName); ok {
					return t, nil
				}
				return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
					fmt.Sprintf("no such table: %s", name))
			}
		}
		return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedSchema,
			fmt.Sprintf("no such schema: %s", schemaName))
	}

	var fallback *types.Table
	for _, s := range b.schemas {
		if t, ok := s.Table(tableName); ok {
			if !s.IsInformationSchema() {
				return t, nil
			}
			if fallback == nil {
				fallback = t
			}
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
		fmt.Sprintf("no such table: %s", name))
}

// resolveIn resolves a column reference against table items.
func resolveIn(items []*FromItem, ref string) (*SelectItem, error) {
	qualifier, name := "", ref
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		qualifier, name = ref[:i], ref[i+1:]
	}

	var match *SelectItem
	for _, f := range items {
		if qualifier != "" && !qualifies(f, qualifier) {
			continue
		}
		col, ok := f.Table.Column(name)
		if !ok {
			continue
		}
		if match != nil {
			return nil, qerrors.NewConfigurationError(qerrors.CodeAmbiguousColumn,
				fmt.Sprintf("column reference %q is ambiguous", ref))
		}
		match = QualifiedColumnItem(col, f.Alias)
	}
	if match == nil {
		return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedColumn,
			fmt.Sprintf("no such column: %s", ref))
	}
	return match, nil
}

func qualifies(f *FromItem, qualifier string) bool {
	if f.Alias != "" {
		return strings.EqualFold(f.Alias, qualifier)
	}
	return strings.EqualFold(f.Table.Name, qualifier) ||
		strings.EqualFold(f.Table.QualifiedName(), qualifier)
}
