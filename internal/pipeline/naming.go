package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// MaxTableNameLen 是导入表名的最大长度，留出余量以满足各存储的标识符限制。
const MaxTableNameLen = 60

const tableSuffixLen = 8

var nonWordRun = regexp.MustCompile(`[\W\s]+`)

// randomHex 返回 n 位随机十六进制串（n <= 32）。
func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// SanitizeColumn 把任意列标题转换为只含小写 ASCII 字母、数字和下划线的标识符。
// 对已合法的标识符是幂等的；空结果退化为 column_<6 位随机十六进制>，
// 两个空标题之间存在约 1/16^6 的碰撞概率。
//
// 先删除 [a-z0-9_] 和空白以外的字符，再把剩余的空白连续段合并成一个下划线，
// 所以被删掉的符号不会留下多余的下划线：" Price ($)" -> "price"，
// "a - b" -> "a_b"（先替换空白再删符号的顺序会得到 "a__b"）。
func SanitizeColumn(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	name := strings.Join(strings.Fields(b.String()), "_")

	switch {
	case name == "":
		return "column_" + randomHex(6)
	case name[0] >= '0' && name[0] <= '9':
		return "col_" + name
	case name[0] == '_':
		return "col" + name
	}
	return name
}

// ColumnMapping 记录原始列标题与清洗后的列名。
type ColumnMapping struct {
	Source string `json:"source"`
	Name   string `json:"name"`
}

// SanitizeColumns 按顺序清洗一组列标题，清洗后重名的列追加 _2、_3 等后缀。
func SanitizeColumns(labels []string) []ColumnMapping {
	seen := make(map[string]struct{}, len(labels))
	out := make([]ColumnMapping, len(labels))
	for i, raw := range labels {
		base := SanitizeColumn(raw)
		name := base
		for n := 2; ; n++ {
			if _, dup := seen[name]; !dup {
				break
			}
			name = fmt.Sprintf("%s_%d", base, n)
		}
		seen[name] = struct{}{}
		out[i] = ColumnMapping{Source: raw, Name: name}
	}
	return out
}

// AllocateTableName 生成 dstable_<id>_<basename>_<8 位随机十六进制> 形式的表名。
// 截断只作用于 basename，随机后缀始终完整保留；唯一性仅依赖随机后缀。
func AllocateTableName(datasourceID uint, originalFilename string) string {
	base := filepath.Base(originalFilename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = nonWordRun.ReplaceAllString(base, "_")

	prefix := fmt.Sprintf("dstable_%d_", datasourceID)
	suffix := "_" + randomHex(tableSuffixLen)

	room := MaxTableNameLen - len(prefix) - len(suffix)
	if room < 0 {
		room = 0
	}
	if len(base) > room {
		base = base[:room]
	}
	return prefix + base + suffix
}
