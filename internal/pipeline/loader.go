package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"smart-erp-go/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dataset 是加载器输出的内存表：有序列标题加有序行，单元格为 string 或 nil（空值）。
// 行数为零时 Empty 为真，Note 说明原因；这不是错误。
type Dataset struct {
	Columns []string
	Rows    [][]interface{}
	// Skipped 是被跳过的格式错误行数。
	Skipped int
	Note    string
}

// Empty 报告数据集是否没有任何可导入的行。
func (d *Dataset) Empty() bool {
	return d == nil || len(d.Columns) == 0 || len(d.Rows) == 0
}

func emptyDataset(note string) *Dataset {
	return &Dataset{Note: note}
}

// Load 按声明的类型把文件解析为 Dataset。
// csv 宽松解析并跳过格式错误的行；xlsx 只读取第一个工作表。
func Load(path string, fileType model.FileType) (*Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceFileMissing, path)
		}
		return nil, err
	}

	switch fileType {
	case model.FileTypeCSV:
		return loadCSV(path)
	case model.FileTypeXLSX:
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileType)
	}
}

func loadCSV(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return emptyDataset("File was empty or unreadable as table."), nil
	}
	if err != nil {
		return emptyDataset(fmt.Sprintf("File was empty or unreadable as table: %v", err)), nil
	}

	ds := &Dataset{Columns: header}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				ds.Skipped++
				continue
			}
			return nil, fmt.Errorf("解析 CSV 失败: %w", err)
		}
		// 字段多于表头的行无法对齐，视为格式错误跳过；字段不足的行用空值补齐。
		if len(record) > len(header) {
			ds.Skipped++
			continue
		}
		ds.Rows = append(ds.Rows, toRow(record, len(header)))
	}

	if len(ds.Rows) == 0 {
		ds.Note = "File was empty or unreadable as table."
	}
	return ds, nil
}

// workbook 是 excelize.File 中加载器用到的部分。
type workbook interface {
	GetSheetList() []string
	GetRows(sheet string, opts ...excelize.Options) ([][]string, error)
}

func loadXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开 Excel 文件失败: %w", err)
	}
	defer f.Close()
	return readWorkbook(f)
}

func readWorkbook(wb workbook) (*Dataset, error) {
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("读取工作表 %q 失败: %w", sheets[0], err)
	}

	// 跳过表头之前的空行
	for len(rows) > 0 && isBlankRow(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return emptyDataset("File was empty or unreadable as table."), nil
	}

	header := append([]string(nil), rows[0]...)
	width := len(header)
	for _, row := range rows[1:] {
		if len(row) > width {
			width = len(row)
		}
	}
	for i := len(header); i < width; i++ {
		header = append(header, fmt.Sprintf("Unnamed: %d", i))
	}

	ds := &Dataset{Columns: header}
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		ds.Rows = append(ds.Rows, toRow(row, width))
	}
	if len(ds.Rows) == 0 {
		ds.Note = "File was empty or unreadable as table."
	}
	return ds, nil
}

func toRow(record []string, width int) []interface{} {
	row := make([]interface{}, width)
	for i := 0; i < width && i < len(record); i++ {
		if record[i] != "" {
			row[i] = record[i]
		}
	}
	return row
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("�"))
}
