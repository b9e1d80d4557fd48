package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// maxBindParams 限制单条 INSERT 的绑定参数数量，低于 SQLite(32766) 与 MySQL(65535) 的上限。
const maxBindParams = 30000

// TableHandle 是运行期才确定结构的导入表：表名加有序的列映射。
type TableHandle struct {
	Name    string
	Columns []ColumnMapping
}

// ColumnNames 返回清洗后的列名。
func (h *TableHandle) ColumnNames() []string {
	names := make([]string, len(h.Columns))
	for i, c := range h.Columns {
		names[i] = c.Name
	}
	return names
}

// Materialize 按清洗后的列名创建表（已存在则跳过），所有列均为 TEXT，不做类型推断。
// 调用方应在与 BulkInsert 相同的事务中调用它。
func Materialize(tx *gorm.DB, tableName string, labels []string) (*TableHandle, error) {
	if len(labels) == 0 {
		return nil, errors.New("cannot create a table without columns")
	}
	handle := &TableHandle{Name: tableName, Columns: SanitizeColumns(labels)}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(tx.Statement.Quote(tableName))
	b.WriteString(" (")
	for i, c := range handle.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tx.Statement.Quote(c.Name))
		b.WriteString(" TEXT")
	}
	b.WriteString(")")

	if err := tx.Exec(b.String()).Error; err != nil {
		return nil, fmt.Errorf("创建表 %s 失败: %w", tableName, err)
	}
	return handle, nil
}

// BulkInsert 用参数化的多行 INSERT 写入全部行。行数超过单条语句的参数上限时
// 分成多条语句，但都在调用方的同一个事务里，任一错误都会让整批回滚。
func BulkInsert(tx *gorm.DB, handle *TableHandle, rows [][]interface{}) (int64, error) {
	width := len(handle.Columns)
	if width == 0 {
		return 0, errors.New("table handle has no columns")
	}
	perStmt := maxBindParams / width
	if perStmt < 1 {
		perStmt = 1
	}

	quoted := make([]string, width)
	for i, name := range handle.ColumnNames() {
		quoted[i] = tx.Statement.Quote(name)
	}
	head := "INSERT INTO " + tx.Statement.Quote(handle.Name) + " (" + strings.Join(quoted, ", ") + ") VALUES "
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"

	var total int64
	for start := 0; start < len(rows); start += perStmt {
		end := start + perStmt
		if end > len(rows) {
			end = len(rows)
		}

		var sql strings.Builder
		sql.WriteString(head)
		args := make([]interface{}, 0, (end-start)*width)
		for i, row := range rows[start:end] {
			if len(row) != width {
				return total, fmt.Errorf("row %d has %d values, table %s expects %d", start+i+1, len(row), handle.Name, width)
			}
			if i > 0 {
				sql.WriteString(", ")
			}
			sql.WriteString(placeholder)
			args = append(args, row...)
		}

		res := tx.Exec(sql.String(), args...)
		if res.Error != nil {
			return total, fmt.Errorf("写入表 %s 失败: %w", handle.Name, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// TableExists 报告表是否已存在。
func TableExists(db *gorm.DB, tableName string) bool {
	return db.Migrator().HasTable(tableName)
}

// DropTable 删除导入表，表不存在时不报错。
func DropTable(ctx context.Context, db *gorm.DB, tableName string) error {
	return db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + db.Statement.Quote(tableName)).Error
}
