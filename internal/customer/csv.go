package customer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"
)

// ImportResult CSV 导入统计。
type ImportResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// ImportCSV 从 Google Contacts 风格的 CSV 导入客户。
// 识别列：Given Name / Family Name / Phone 1 - Value；
// 退而求其次尝试 Name / Phone（Name 按第一个空格拆 first/last）。
// 有电话的按归一化电话去重：已存在则只补全缺失的姓名。
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // 联系人导出常有参差不齐的行

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	res := &ImportResult{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// 坏行跳过，导入剩下的
			res.Skipped++
			continue
		}

		first := field(row, "Given Name")
		last := field(row, "Family Name")
		phone := field(row, "Phone 1 - Value")
		if phone == "" {
			phone = field(row, "Phone")
		}
		if first == "" && last == "" {
			if name := field(row, "Name"); name != "" {
				parts := strings.Fields(name)
				if len(parts) >= 2 {
					first, last = parts[0], strings.Join(parts[1:], " ")
				} else {
					first = name
				}
			}
		}
		phone = NormalizePhone(phone)

		if first == "" && last == "" && phone == "" {
			res.Skipped++
			continue
		}

		var existing *Customer
		if phone != "" {
			existing, err = s.repo.FindByPhone(ctx, phone)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return res, err
			}
		}

		if existing != nil {
			changed := false
			if existing.FirstName == "" && first != "" {
				existing.FirstName = first
				changed = true
			}
			if existing.LastName == "" && last != "" {
				existing.LastName = last
				changed = true
			}
			if changed {
				if err := s.repo.Save(ctx, existing); err != nil {
					return res, err
				}
			}
			res.Updated++
			continue
		}

		if _, err := s.Create(ctx, CreateInput{FirstName: first, LastName: last, Phone: phone}); err != nil {
			res.Skipped++
			continue
		}
		res.Inserted++
	}

	return res, nil
}

// ExportCSV 导出 first_name,last_name,phone 三列，按姓+名排序。
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	customers, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"first_name", "last_name", "phone"}); err != nil {
		return err
	}
	for _, c := range customers {
		if err := writer.Write([]string{c.FirstName, c.LastName, c.Phone}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
