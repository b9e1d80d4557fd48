package pipeline

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"smart-erp-go/internal/testutil"
)

func readTable(t *testing.T, db *gorm.DB, table string) []map[string]interface{} {
	t.Helper()
	var rows []map[string]interface{}
	require.NoError(t, db.Table(table).Find(&rows).Error)
	return rows
}

func TestMaterializeAndInsert_ProductSheet(t *testing.T) {
	db := testutil.NewDB(t)

	var handle *TableHandle
	var inserted int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		handle, err = Materialize(tx, "dstable_1_products_0badc0de", []string{"Product Name", " Price ($)"})
		if err != nil {
			return err
		}
		inserted, err = BulkInsert(tx, handle, [][]interface{}{{"Widget", "9.99"}})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"product_name", "price"}, handle.ColumnNames())
	assert.Equal(t, int64(1), inserted)

	columns, err := db.Migrator().ColumnTypes("dstable_1_products_0badc0de")
	require.NoError(t, err)
	require.Len(t, columns, 2)
	for _, c := range columns {
		assert.True(t, strings.EqualFold("TEXT", c.DatabaseTypeName()), c.DatabaseTypeName())
	}

	rows := readTable(t, db, "dstable_1_products_0badc0de")
	require.Len(t, rows, 1)
	assert.Equal(t, "Widget", rows[0]["product_name"])
	assert.Equal(t, "9.99", rows[0]["price"])
}

func TestMaterialize_ReservedWordColumnsAreQuoted(t *testing.T) {
	db := testutil.NewDB(t)
	err := db.Transaction(func(tx *gorm.DB) error {
		h, err := Materialize(tx, "dstable_1_kw_00000000", []string{"select", "from", "order"})
		if err != nil {
			return err
		}
		_, err = BulkInsert(tx, h, [][]interface{}{{"a", nil, "c"}})
		return err
	})
	require.NoError(t, err)

	rows := readTable(t, db, "dstable_1_kw_00000000")
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["from"])
}

func TestMaterialize_IsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	for i := 0; i < 2; i++ {
		_, err := Materialize(db, "dstable_1_twice_00000000", []string{"a"})
		require.NoError(t, err)
	}
	assert.True(t, TableExists(db, "dstable_1_twice_00000000"))
}

func TestBulkInsert_ChunksLargeBatches(t *testing.T) {
	db := testutil.NewDB(t)
	labels := make([]string, 300)
	for i := range labels {
		labels[i] = "c"
	}
	// 300 列时每条语句最多 100 行，250 行会拆成三条语句
	rows := make([][]interface{}, 250)
	for i := range rows {
		row := make([]interface{}, len(labels))
		for j := range row {
			row[j] = "v"
		}
		rows[i] = row
	}

	var n int64
	err := db.Transaction(func(tx *gorm.DB) error {
		h, err := Materialize(tx, "dstable_1_wide_00000000", labels)
		if err != nil {
			return err
		}
		n, err = BulkInsert(tx, h, rows)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	var count int64
	require.NoError(t, db.Table("dstable_1_wide_00000000").Count(&count).Error)
	assert.Equal(t, int64(250), count)
}

func TestBulkInsert_BadRowRollsBackEverything(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := Materialize(db, "dstable_1_bad_00000000", []string{"a", "b"})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		h := &TableHandle{Name: "dstable_1_bad_00000000", Columns: SanitizeColumns([]string{"a", "b"})}
		_, err := BulkInsert(tx, h, [][]interface{}{{"1", "2"}, {"3"}})
		return err
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Table("dstable_1_bad_00000000").Count(&count).Error)
	assert.Zero(t, count)
}

func TestBulkInsert_StoreErrorRollsBackBatch(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `dstable_2_t_00000000` (`a` TEXT, `b` TEXT)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `dstable_2_t_00000000` (`a`, `b`) VALUES (?, ?), (?, ?)")).
		WithArgs("1", "2", "3", "4").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = db.Transaction(func(tx *gorm.DB) error {
		h, err := Materialize(tx, "dstable_2_t_00000000", []string{"A", "B"})
		if err != nil {
			return err
		}
		_, err = BulkInsert(tx, h, [][]interface{}{{"1", "2"}, {"3", "4"}})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropTable(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := Materialize(db, "dstable_1_gone_00000000", []string{"a"})
	require.NoError(t, err)

	require.NoError(t, DropTable(context.Background(), db, "dstable_1_gone_00000000"))
	assert.False(t, TableExists(db, "dstable_1_gone_00000000"))
	require.NoError(t, DropTable(context.Background(), db, "dstable_1_gone_00000000"))
}
