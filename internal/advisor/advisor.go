package advisor

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/OilChangeTracker/OilChangeTracker/internal/telemetry"
)

// TermCount 搜索词及出现次数。
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Metrics 统计窗口内的运营指标，全部来自事件日志。
type Metrics struct {
	WindowDays         int            `json:"window_days"`
	ActionCounts       map[string]int `json:"action_counts"`
	SearchTotal        int            `json:"search_total"`
	SearchNoResult     int            `json:"search_no_result"`
	SearchNoResultRate float64        `json:"search_no_result_rate"`
	TopSearchTerms     []TermCount    `json:"top_search_terms"`
	Deducts            int            `json:"deducts"`
	Restores           int            `json:"restores"`
	RestoreRatio       float64        `json:"restore_ratio"`
	VehiclesAdded      int            `json:"vehicles_added"`
	SpecLookups        int            `json:"spec_lookups"`
}

// Report 一次 advisor 运行的完整输出。
type Report struct {
	GeneratedUTC string   `json:"generated_utc"`
	Metrics      Metrics  `json:"metrics"`
	Advice       []string `json:"advice"`
}

// Advisor 从事件日志生成店面运营建议报告。
type Advisor struct {
	eventsPath string
	reportsDir string
	windowDays int
}

func New(eventsPath, reportsDir string, windowDays int) *Advisor {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Advisor{eventsPath: eventsPath, reportsDir: reportsDir, windowDays: windowDays}
}

// ComputeMetrics 扫描事件日志统计指标。
func (a *Advisor) ComputeMetrics() (Metrics, error) {
	events, err := telemetry.ReadSince(a.eventsPath, a.windowDays)
	if err != nil {
		return Metrics{}, fmt.Errorf("read events: %w", err)
	}

	m := Metrics{
		WindowDays:   a.windowDays,
		ActionCounts: map[string]int{},
	}
	termCounts := map[string]int{}

	for _, e := range events {
		m.ActionCounts[e.Action]++
		switch e.Action {
		case "search":
			m.SearchTotal++
			if term, _ := e.Details["term"].(string); term != "" {
				termCounts[term]++
			}
			if results, ok := e.Details["results"].(float64); !ok || results == 0 {
				m.SearchNoResult++
			}
		case "deduct":
			m.Deducts++
		case "restore":
			m.Restores++
		case "vehicle_add":
			m.VehiclesAdded++
		case "spec_lookup":
			m.SpecLookups++
		}
	}

	if m.SearchTotal > 0 {
		m.SearchNoResultRate = float64(m.SearchNoResult) / float64(m.SearchTotal)
	}
	if m.Deducts > 0 {
		m.RestoreRatio = float64(m.Restores) / float64(m.Deducts)
	}

	for term, count := range termCounts {
		m.TopSearchTerms = append(m.TopSearchTerms, TermCount{Term: term, Count: count})
	}
	sort.Slice(m.TopSearchTerms, func(i, j int) bool {
		if m.TopSearchTerms[i].Count != m.TopSearchTerms[j].Count {
			return m.TopSearchTerms[i].Count > m.TopSearchTerms[j].Count
		}
		return m.TopSearchTerms[i].Term < m.TopSearchTerms[j].Term
	})
	if len(m.TopSearchTerms) > 10 {
		m.TopSearchTerms = m.TopSearchTerms[:10]
	}
	return m, nil
}

// GenerateAdvice 按规则产出建议；没有触发任何规则时给一条正常提示。
func GenerateAdvice(m Metrics) []string {
	var tips []string
	if m.SearchTotal >= 10 && m.SearchNoResultRate > 0.2 {
		tips = append(tips, "Searches without matches are over 20%. Consider importing customers from a CSV to reduce 'no result' searches.")
	}
	if m.Deducts >= 10 && m.RestoreRatio > 0.2 {
		tips = append(tips, "More than 20% of oil change deductions were restored. Consider staff refresher or confirm dialog on deduct.")
	}
	if m.VehiclesAdded >= 10 && float64(m.SpecLookups) < 0.4*float64(m.VehiclesAdded) {
		tips = append(tips, "Many vehicles added but few oil spec lookups. Add more entries to the local oil spec table or review workflow.")
	}
	if len(tips) == 0 {
		tips = append(tips, "System usage looks healthy. Keep building your local oil spec table for instant lookups.")
	}
	return tips
}

var reportTemplate = template.Must(template.New("report").Parse(`<!doctype html><html><head><meta charset="utf-8"><title>Advisor Report</title>
<style>body{font-family:system-ui,Segoe UI,Roboto,sans-serif;margin:16px} code{background:#f3f3f3;padding:2px 4px}</style>
</head><body><h1>Advisor Report</h1>
<p><strong>Generated (UTC):</strong> {{.GeneratedUTC}}</p>
<h2>Key Metrics (last {{.Metrics.WindowDays}} days)</h2>
<ul>
<li>Total searches: {{.Metrics.SearchTotal}} (no result: {{.Metrics.SearchNoResult}})</li>
<li>Oil change deducts: {{.Metrics.Deducts}}, restores: {{.Metrics.Restores}}</li>
<li>Vehicles added: {{.Metrics.VehiclesAdded}}, spec lookups: {{.Metrics.SpecLookups}}</li>
</ul>
{{if .Metrics.TopSearchTerms}}<h3>Top search terms</h3><ol>
{{range .Metrics.TopSearchTerms}}<li>{{.Term}} — {{.Count}}</li>
{{end}}</ol>{{end}}
<h2>Advisor Suggestions</h2><ul>
{{range .Advice}}<li>{{.}}</li>
{{end}}</ul>
</body></html>
`))

// RunOnce 统计、出建议、落盘 JSON + HTML 两份报告，返回报告内容与两个文件路径。
func (a *Advisor) RunOnce() (*Report, string, string, error) {
	metrics, err := a.ComputeMetrics()
	if err != nil {
		return nil, "", "", err
	}
	report := &Report{
		GeneratedUTC: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Metrics:      metrics,
		Advice:       GenerateAdvice(metrics),
	}

	if err := os.MkdirAll(a.reportsDir, 0755); err != nil {
		return nil, "", "", err
	}
	stamp := time.Now().UTC().Format("2006-01-02")

	jsonPath := filepath.Join(a.reportsDir, fmt.Sprintf("advisor_%s.json", stamp))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, "", "", err
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return nil, "", "", err
	}

	htmlPath := filepath.Join(a.reportsDir, fmt.Sprintf("advisor_%s.html", stamp))
	f, err := os.Create(htmlPath)
	if err != nil {
		return nil, "", "", err
	}
	defer f.Close()
	if err := reportTemplate.Execute(f, report); err != nil {
		return nil, "", "", err
	}

	return report, jsonPath, htmlPath, nil
}
