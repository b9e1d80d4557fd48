package model

import (
	"bytes"
	"time"
)

// LocalTime 在 JSON 中以本地时区的 "YYYY-MM-DD HH:MM:SS" 表示，零值输出 null。
type LocalTime time.Time

var jsonNull = []byte("null")

func (t LocalTime) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return jsonNull, nil
	}
	b := make([]byte, 0, len(time.DateTime)+2)
	b = append(b, '"')
	b = tt.Local().AppendFormat(b, time.DateTime)
	return append(b, '"'), nil
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) || bytes.Equal(data, []byte(`""`)) {
		*t = LocalTime{}
		return nil
	}
	parsed, err := time.ParseInLocation(`"`+time.DateTime+`"`, string(data), time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}
