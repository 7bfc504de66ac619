package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event 一条业务事件（JSON Lines 格式追加到 events.jsonl）。
// 这是独立于计划/台账表的运营观测日志，advisor 从这里统计；
// 它不是账本，丢了不影响余额正确性。
type Event struct {
	TS      string                 `json:"ts"`
	Action  string                 `json:"action"`
	Entity  string                 `json:"entity"`
	User    string                 `json:"user"`
	Details map[string]interface{} `json:"details"`
}

// Time 解析事件时间戳；格式错误返回零值。
func (e Event) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.TS)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Recorder 追加写 events.jsonl。进程内单写者，用互斥锁保证行不交错。
type Recorder struct {
	path string
	mu   sync.Mutex
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Log 记录一条事件。失败只返回错误不 panic：
// 事件日志是旁路观测，绝不能影响正常请求。
func (r *Recorder) Log(action, entity string, details map[string]interface{}) error {
	if r == nil || r.path == "" {
		return fmt.Errorf("recorder not initialized")
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	rec := Event{
		TS:      time.Now().UTC().Format(time.RFC3339),
		Action:  action,
		Entity:  entity,
		User:    "",
		Details: details,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// ReadSince 读取最近 days 天内的事件；坏行直接跳过（日志可能被手工编辑过）。
func ReadSince(path string, days int) ([]Event, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		t := e.Time()
		if t.IsZero() || t.Before(cutoff) {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return events, err
	}
	return events, nil
}
