package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahithikokkula/explorer/pkg/anonapi"
	"github.com/sahithikokkula/explorer/pkg/explorer"
)

func TestPrintMetric(t *testing.T) {
	var buf bytes.Buffer
	printMetric(&buf, explorer.Metric{Name: "stats.min", Value: 3})
	printMetric(&buf, explorer.Metric{Name: "distinct.values", Value: []string{"a", "b"}})
	assert.Equal(t, "stats.min = 3\ndistinct.values = [\"a\",\"b\"]\n", buf.String())
}

func TestPrintDataSources(t *testing.T) {
	sources := []anonapi.DataSource{
		{Name: "taxi", Tables: []anonapi.Table{{ID: "rides", Columns: []anonapi.Column{
			{Name: "fare", Type: "real", Isolated: anonapi.Isolation{Checked: true}},
		}}}},
		{Name: "banking", Tables: []anonapi.Table{{ID: "loans", Columns: []anonapi.Column{
			{Name: "client_id", Type: "integer", UserID: true, Isolated: anonapi.Isolation{Checked: true, Value: true}},
			{Name: "purpose", Type: "text"},
		}}}},
	}
	var buf bytes.Buffer
	require.NoError(t, printDataSources(&buf, sources))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "DATA SOURCE"))
	assert.Contains(t, lines[1], "banking")
	assert.Contains(t, lines[1], "user_id,isolating")
	assert.Contains(t, lines[2], "isolation_unchecked")
	assert.Contains(t, lines[3], "taxi")
	assert.NotContains(t, lines[3], "isolat")
}

func TestRunCmd_RequiresFlags(t *testing.T) {
	for _, name := range []string{"data-source", "table", "column"} {
		f := runCmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, []string{"true"}, f.Annotations["cobra_annotation_bash_completion_one_required_flag"], name)
	}
}
