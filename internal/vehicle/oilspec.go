package vehicle

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SpecRow 本地机油规格表的一行（static/oil_specs.json）。
// engine_contains 非空时要求发动机描述至少命中其中一个片段，
// 用于区分同款不同排量。
type SpecRow struct {
	Year           string   `json:"year"`
	Make           string   `json:"make"`
	Model          string   `json:"model"`
	EngineContains []string `json:"engine_contains"`
	OilType        string   `json:"oil_type"`
	OilWeight      string   `json:"oil_weight"`
	CapacityQuarts *float64 `json:"capacity_quarts"`
}

// SpecTable 只读规格表，启动时从 JSON 加载。
type SpecTable struct {
	specs []SpecRow
}

// LoadSpecTable 加载本地规格表；文件不存在返回空表（查询全部落空，但不报错）。
func LoadSpecTable(path string) (*SpecTable, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &SpecTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read oil specs: %w", err)
	}
	var payload struct {
		Specs []SpecRow `json:"specs"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse oil specs: %w", err)
	}
	return &SpecTable{specs: payload.Specs}, nil
}

// SpecMatch 命中的规格。
type SpecMatch struct {
	OilType   string
	OilWeight string
	OilQuarts string
}

// Match 按年份精确、厂牌/车型大小写无关（车型另试去空格）匹配；
// year/make/model 缺一不匹配。
func (t *SpecTable) Match(year, make, model, engineText string) *SpecMatch {
	if t == nil {
		return nil
	}
	y := strings.TrimSpace(year)
	m := strings.ToUpper(strings.TrimSpace(make))
	md := strings.ToUpper(strings.TrimSpace(model))
	e := strings.ToUpper(engineText)
	if y == "" || m == "" || md == "" {
		return nil
	}

	for _, row := range t.specs {
		if row.Year != "" && strings.TrimSpace(row.Year) != y {
			continue
		}
		rowMake := strings.ToUpper(strings.TrimSpace(row.Make))
		if rowMake != "" && rowMake != m {
			continue
		}
		rowModel := strings.ToUpper(strings.TrimSpace(row.Model))
		if rowModel != "" {
			exact := rowModel == md
			noSpaces := strings.ReplaceAll(rowModel, " ", "") == strings.ReplaceAll(md, " ", "")
			if !exact && !noSpaces {
				continue
			}
		}
		if len(row.EngineContains) > 0 {
			hit := false
			for _, frag := range row.EngineContains {
				if frag != "" && strings.Contains(e, strings.ToUpper(frag)) {
					hit = true
					break
				}
			}
			if !hit {
				continue
			}
		}

		match := &SpecMatch{OilType: row.OilType, OilWeight: row.OilWeight}
		if row.CapacityQuarts != nil {
			match.OilQuarts = strconv.FormatFloat(*row.CapacityQuarts, 'f', -1, 64)
		}
		return match
	}
	return nil
}
