package explorer

import (
	"context"
	"fmt"
	"time"

	"github.com/sahithikokkula/explorer/pkg/anonapi"
	"github.com/sahithikokkula/explorer/pkg/executor"
)

// ColumnType is the declared type of a column as reported by the service.
type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeText      ColumnType = "text"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeDate      ColumnType = "date"
	TypeDatetime  ColumnType = "datetime"
	TypeUnknown   ColumnType = "unknown"
)

// ParseColumnType maps the service's type names onto ColumnType.
func ParseColumnType(s string) ColumnType {
	switch t := ColumnType(s); t {
	case TypeInteger, TypeReal, TypeText, TypeBoolean, TypeTimestamp, TypeDate, TypeDatetime:
		return t
	}
	return TypeUnknown
}

func (t ColumnType) IsNumeric() bool { return t == TypeInteger || t == TypeReal }

func (t ColumnType) IsTemporal() bool {
	return t == TypeTimestamp || t == TypeDate || t == TypeDatetime
}

// Column is the metadata of one explored column.
type Column struct {
	Name      string     `json:"name"`
	Type      ColumnType `json:"type"`
	IsUserID  bool       `json:"is_user_id"`
	Isolating bool       `json:"isolating"`
}

// MetadataSource lists the data sources visible to the explorer.
// *anonapi.Client and the storage cache implement it.
type MetadataSource interface {
	DataSources(ctx context.Context) ([]anonapi.DataSource, error)
}

// ExplorerContext names the explored columns and carries the capability to
// query them. It is shared read-only by every component of an exploration.
type ExplorerContext struct {
	DataSource   string
	Table        string
	Columns      []Column
	QueryTimeout time.Duration

	runner executor.Runner
}

// NewExplorerContext builds a context without checking metadata.
func NewExplorerContext(runner executor.Runner, dataSource, table string, columns []Column, queryTimeout time.Duration) *ExplorerContext {
	return &ExplorerContext{
		DataSource:   dataSource,
		Table:        table,
		Columns:      append([]Column(nil), columns...),
		QueryTimeout: queryTimeout,
		runner:       runner,
	}
}

// Column is the first explored column.
func (c *ExplorerContext) Column() Column {
	if len(c.Columns) == 0 {
		return Column{}
	}
	return c.Columns[0]
}

func (c *ExplorerContext) Runner() executor.Runner { return c.runner }

// Exec runs a typed query against the context's data source.
func Exec[T any](ctx context.Context, ec *ExplorerContext, q executor.Query[T]) ([]T, error) {
	return executor.Execute(ctx, ec.runner, ec.DataSource, q, ec.QueryTimeout)
}

// MetaDataCheckError reports that a requested data source, table or column
// does not exist.
type MetaDataCheckError struct {
	DataSource string
	Table      string
	Column     string
	Reason     string
}

func (e *MetaDataCheckError) Error() string {
	target := e.DataSource
	if e.Table != "" {
		target += "." + e.Table
	}
	if e.Column != "" {
		target += "." + e.Column
	}
	return fmt.Sprintf("metadata check failed for %s: %s", target, e.Reason)
}

// ContextOptions tune BuildContext.
type ContextOptions struct {
	QueryTimeout time.Duration
}

// MaxColumns bounds the columns explored together.
const MaxColumns = 8

// BuildContext resolves the requested columns against the data source
// metadata and returns the context an exploration runs in.
func BuildContext(ctx context.Context, meta MetadataSource, runner executor.Runner, dataSource, table string, columns []string, opts ContextOptions) (*ExplorerContext, error) {
	if len(columns) == 0 {
		return nil, &MetaDataCheckError{DataSource: dataSource, Table: table, Reason: "no columns requested"}
	}
	if len(columns) > MaxColumns {
		return nil, &MetaDataCheckError{DataSource: dataSource, Table: table, Reason: fmt.Sprintf("at most %d columns can be explored together", MaxColumns)}
	}
	sources, err := meta.DataSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load data source metadata: %w", err)
	}
	var ds *anonapi.DataSource
	for i := range sources {
		if sources[i].Name == dataSource {
			ds = &sources[i]
			break
		}
	}
	if ds == nil {
		return nil, &MetaDataCheckError{DataSource: dataSource, Reason: "data source not found"}
	}
	tbl, ok := ds.Table(table)
	if !ok {
		return nil, &MetaDataCheckError{DataSource: dataSource, Table: table, Reason: "table not found"}
	}
	seen := make(map[string]bool, len(columns))
	cols := make([]Column, 0, len(columns))
	for _, name := range columns {
		if seen[name] {
			return nil, &MetaDataCheckError{DataSource: dataSource, Table: table, Column: name, Reason: "column requested twice"}
		}
		seen[name] = true
		c, ok := tbl.Column(name)
		if !ok {
			return nil, &MetaDataCheckError{DataSource: dataSource, Table: table, Column: name, Reason: "column not found"}
		}
		cols = append(cols, Column{
			Name:      c.Name,
			Type:      ParseColumnType(c.Type),
			IsUserID:  c.UserID,
			Isolating: c.Isolated.Isolating(),
		})
	}
	return NewExplorerContext(runner, dataSource, table, cols, opts.QueryTimeout), nil
}
