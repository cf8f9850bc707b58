package source

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/pkg/types"
)

// Composite presents several sources as one. Schemas are merged; a schema
// name offered by more than one child belongs to the first.
type Composite struct {
	children []DataContext
	logger   *zap.Logger
}

// CompositeOption configures a Composite.
type CompositeOption func(*Composite)

// WithCompositeLogger sets the logger.
func WithCompositeLogger(logger *zap.Logger) CompositeOption {
	return func(c *Composite) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewComposite combines children in priority order.
func NewComposite(children []DataContext, opts ...CompositeOption) *Composite {
	c := &Composite{children: children, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schemas returns the schemas of every child, sorted.
func (c *Composite) Schemas(ctx context.Context) ([]*types.Schema, error) {
	seen := make(map[string]bool)
	var out []*types.Schema
	for _, child := range c.children {
		schemas, err := child.Schemas(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range schemas {
			if seen[s.Name] {
				c.logger.Warn("schema shadowed by an earlier source", zap.String("schema", s.Name))
				continue
			}
			seen[s.Name] = true
			out = append(out, s)
		}
	}
	types.SortSchemas(out, types.DefaultSchemaOrder)
	return out, nil
}

// Owner returns the child serving the named schema.
func (c *Composite) Owner(ctx context.Context, schema string) (DataContext, error) {
	for _, child := range c.children {
		schemas, err := child.Schemas(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range schemas {
			if strings.EqualFold(s.Name, schema) {
				return child, nil
			}
		}
	}
	return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedSchema,
		fmt.Sprintf("no such schema: %s", schema))
}

// Materialize delegates to the child owning the table's schema.
func (c *Composite) Materialize(ctx context.Context, req Request) (data.DataSet, error) {
	if req.Table.Schema == nil {
		return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
			fmt.Sprintf("table %s has no schema", req.Table.Name))
	}
	owner, err := c.Owner(ctx, req.Table.Schema.Name)
	if err != nil {
		return nil, err
	}
	return owner.Materialize(ctx, req)
}
