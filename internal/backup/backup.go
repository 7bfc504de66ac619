package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/OilChangeTracker/OilChangeTracker/internal/common/logger"
)

// backupTables 纳入快照的表，按依赖顺序排列方便人工恢复。
var backupTables = []string{
	"customers",
	"contacts",
	"vehicles",
	"vin_oil_specs",
	"oil_change_plans",
	"oil_change_ledger",
}

// Backuper 把全部业务表导出成一个 JSON 快照文件。
// 单店数据量小，整库 JSON 导出比增量方案更容易人工核对和恢复。
type Backuper struct {
	db  *gorm.DB
	dir string
	log logger.Logger
}

func New(db *gorm.DB, dir string, log logger.Logger) *Backuper {
	return &Backuper{db: db, dir: dir, log: log}
}

// RunOnce 导出一次快照，返回文件路径。
func (b *Backuper) RunOnce(ctx context.Context) (string, error) {
	if b == nil || b.db == nil {
		return "", fmt.Errorf("backuper not initialized")
	}

	snapshot := map[string]interface{}{
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"tables":     map[string][]map[string]interface{}{},
	}
	tables := snapshot["tables"].(map[string][]map[string]interface{})

	for _, table := range backupTables {
		var rows []map[string]interface{}
		if err := b.db.WithContext(ctx).Table(table).Find(&rows).Error; err != nil {
			return "", fmt.Errorf("dump table %s: %w", table, err)
		}
		tables[table] = rows
	}

	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return "", err
	}
	stamp := time.Now().Format("2006-01-02_15-04-05")
	path := filepath.Join(b.dir, fmt.Sprintf("oilchange_%s.json", stamp))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// StartPeriodic 启动后立刻备份一次，之后每 intervalHours 小时一次，
// ctx 取消时退出。失败只记日志，下个周期重试。
func (b *Backuper) StartPeriodic(ctx context.Context, intervalHours int) {
	if intervalHours <= 0 {
		intervalHours = 6
	}
	go func() {
		b.runAndLog(ctx)
		ticker := time.NewTicker(time.Duration(intervalHours) * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.runAndLog(ctx)
			}
		}
	}()
}

func (b *Backuper) runAndLog(ctx context.Context) {
	path, err := b.RunOnce(ctx)
	if b.log == nil {
		return
	}
	if err != nil {
		b.log.Errorf("backup failed: %v", err)
		return
	}
	b.log.Infof("backup written: %s", path)
}
