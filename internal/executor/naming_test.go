package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildIndexNameShortStaysBare(t *testing.T) {
	name := BuildIndexName("orders", []string{"tenant_id"})
	assert.Equal(t, "idx_orders_tenant_id", name)
}

func TestBuildIndexNameTruncatesLongNames(t *testing.T) {
	cols := []string{
		"a_very_long_column_name_one",
		"a_very_long_column_name_two",
		"a_very_long_column_name_three",
	}
	name := BuildIndexName("a_very_long_table_name_for_testing_purposes", cols)
	assert.LessOrEqual(t, len(name), nameDataLen)
	assert.True(t, strings.Contains(name, "_"))
}

func TestBuildIndexNameDisambiguatesDifferentShapes(t *testing.T) {
	table := "a_very_long_table_name_for_testing_purposes_here"
	name1 := BuildIndexName(table, []string{"column_group_one_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"})
	name2 := BuildIndexName(table, []string{"column_group_one_bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"})
	assert.NotEqual(t, name1, name2)
	assert.LessOrEqual(t, len(name1), nameDataLen)
	assert.LessOrEqual(t, len(name2), nameDataLen)
}
