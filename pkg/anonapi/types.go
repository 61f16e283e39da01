package anonapi

import (
	"encoding/json"
	"fmt"
)

type submitRequest struct {
	Query submitQuery `json:"query"`
}

type submitQuery struct {
	Statement      string `json:"statement"`
	DataSourceName string `json:"data_source_name"`
}

type submitResponse struct {
	Success     bool   `json:"success"`
	QueryID     string `json:"query_id"`
	Description string `json:"description,omitempty"`
}

type pollResponse struct {
	Query QueryResult `json:"query"`
}

// QueryResult is the state of a submitted query as last reported by the
// service.
type QueryResult struct {
	ID        string      `json:"id,omitempty"`
	Completed bool        `json:"completed"`
	State     string      `json:"query_state"`
	Statement string      `json:"statement"`
	Error     *string     `json:"error"`
	Columns   []string    `json:"columns"`
	Types     []string    `json:"types"`
	Rows      []ResultRow `json:"rows"`
	RowCount  int64       `json:"row_count,omitempty"`
}

// Failed reports whether the query completed with an error.
func (r *QueryResult) Failed() bool {
	return r.Error != nil && *r.Error != ""
}

// ResultRow is one wire row. Tokens are decoded positionally by the caller.
type ResultRow struct {
	Row         []json.RawMessage `json:"row"`
	Occurrences int64             `json:"occurrences"`
}

// DataSource describes one queryable data source.
type DataSource struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Tables      []Table `json:"tables"`
}

// Table returns the table with the given id.
func (d DataSource) Table(id string) (Table, bool) {
	for _, t := range d.Tables {
		if t.ID == id {
			return t, true
		}
	}
	return Table{}, false
}

type Table struct {
	ID      string   `json:"id"`
	Columns []Column `json:"columns"`
}

// Column returns the column with the given name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

type Column struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	UserID   bool      `json:"user_id"`
	Isolated Isolation `json:"isolated"`
}

// Isolation status strings reported while the isolation check has not produced
// a boolean answer.
const (
	IsolationPending       = "pending"
	IsolationFailed        = "failed"
	IsolationUnknownColumn = "unknown_column"
	IsolationOK            = "ok"
)

// Isolation is the "isolated" attribute of a column: a boolean once the
// service has checked the column, a status string before that.
type Isolation struct {
	Checked bool
	Value   bool
	Status  string
}

// Isolating reports whether the column must be treated as isolating. Columns
// without a boolean answer are assumed isolating.
func (i Isolation) Isolating() bool {
	return !i.Checked || i.Value
}

func (i *Isolation) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*i = Isolation{Checked: true, Value: t}
	case string:
		*i = Isolation{Status: t}
	case nil:
		*i = Isolation{}
	default:
		return fmt.Errorf("isolated: unexpected value %s", b)
	}
	return nil
}

func (i Isolation) MarshalJSON() ([]byte, error) {
	if i.Checked {
		return json.Marshal(i.Value)
	}
	if i.Status == "" {
		return []byte("null"), nil
	}
	return json.Marshal(i.Status)
}
