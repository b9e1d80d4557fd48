package pipeline

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func TestSanitizeColumn(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Product Name", "product_name"},
		{" Price ($)", "price"},
		{"Unit   Cost\tUSD", "unit_cost_usd"},
		{"already_valid", "already_valid"},
		{"2023 Revenue", "col_2023_revenue"},
		{"_hidden", "col_hidden"},
		{"Qty.", "qty"},
		{"Straße", "strae"},
		{"select", "select"},
		{"a - b", "a_b"},
		{"Cost (USD) Net", "cost_usd_net"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeColumn(tt.in))
		})
	}
}

func TestSanitizeColumn_EmptyFallback(t *testing.T) {
	for _, in := range []string{"", "   ", "($%)", "名称"} {
		got := SanitizeColumn(in)
		assert.Regexp(t, `^column_[0-9a-f]{6}$`, got, in)
	}
}

func TestSanitizeColumn_OutputShapeAndIdempotence(t *testing.T) {
	inputs := []string{
		"Product Name", "Price ($)", "2nd place", "__x__", "a  b  c", "UPPER", "", "-", "ok_", "Tab\tSeparated",
		"e-mail address", "naïve", "100%", "Ünïcödé Col",
	}
	for _, in := range inputs {
		out := SanitizeColumn(in)
		assert.Regexp(t, identifierPattern, out, "input %q", in)
		assert.Equal(t, out, SanitizeColumn(out), "re-sanitizing %q must be a no-op", out)
	}
}

func TestSanitizeColumns_DedupPreservesOrder(t *testing.T) {
	cols := SanitizeColumns([]string{"Name", "name ", "NAME", "Price ($)"})
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"name", "name_2", "name_3", "price"}, names)
	assert.Equal(t, "Price ($)", cols[3].Source)
}

var tableNamePattern = regexp.MustCompile(`^dstable_\d+_\w*_[0-9a-f]{8}$`)

func TestAllocateTableName(t *testing.T) {
	name := AllocateTableName(7, "Q1 sales-report (final).csv")
	assert.True(t, strings.HasPrefix(name, "dstable_7_Q1_sales_report_final__"), name)
	assert.Regexp(t, tableNamePattern, name)
	assert.LessOrEqual(t, len(name), MaxTableNameLen)
}

func TestAllocateTableName_TruncationKeepsSuffix(t *testing.T) {
	long := strings.Repeat("verylongname", 20) + ".xlsx"
	name := AllocateTableName(123456, long)
	require.Len(t, name, MaxTableNameLen)
	assert.Regexp(t, `_[0-9a-f]{8}$`, name)
	assert.True(t, strings.HasPrefix(name, "dstable_123456_verylongname"))
}

func TestAllocateTableName_Distinct(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		name := AllocateTableName(1, "same.csv")
		_, dup := seen[name]
		require.False(t, dup, name)
		seen[name] = struct{}{}
	}
}
