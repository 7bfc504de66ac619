package ledger

import (
	"context"
	"time"
)

// Plan 客户当前的免费机油更换余额（oil_change_plans 表的 GORM 模型）。
// 同一客户只允许一个 active 的计划；历史计划保留为 inactive。
type Plan struct {
	ID           uint      `gorm:"primaryKey"`
	CustomerID   uint      `gorm:"index;not null"`
	TotalAllowed int       `gorm:"not null;default:0"` // 累计授予上限（随余额同步上调）
	Remaining    int       `gorm:"not null;default:0"` // 当前可用次数
	Active       bool      `gorm:"index;not null;default:true"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (Plan) TableName() string {
	return "oil_change_plans"
}

// Entry 一条余额变动审计记录（oil_change_ledger 表）。
// delta 是唯一的记账字段：-1 使用一次，+N 授予，0 纯备注。
// 余额始终可由 delta 求和重建；Plan.Remaining 只是事务内同步维护的投影。
type Entry struct {
	ID         uint      `gorm:"primaryKey"`
	CustomerID uint      `gorm:"index;not null"`
	VehicleID  *uint     `gorm:"index"` // 弱引用：车辆可独立删除，历史记录保留
	Mileage    *int      ``
	OilWeight  string    `gorm:"size:10"` // 扣减时从车辆快照下来的机油规格
	OilQuarts  string    `gorm:"size:10"`
	Delta      int       `gorm:"not null"`
	Note       string    `gorm:"size:255"`
	OccurredAt time.Time `gorm:"index;not null"` // 业务发生日期（可编辑）
	CreatedAt  time.Time `gorm:"autoCreateTime"` // 行写入时间（审计用，不可编辑）
}

func (Entry) TableName() string {
	return "oil_change_ledger"
}

// WasFree 该条记录是否是一次免费机油更换的使用。
func (e Entry) WasFree() bool { return e.Delta == -1 }

// IsAddition 是否为授予类记录。
func (e Entry) IsAddition() bool { return e.Delta > 0 }

// IsNote 是否为纯备注（不影响余额）。
func (e Entry) IsNote() bool { return e.Delta == 0 }

// VehicleSnapshot 扣减时需要的车辆信息（归属校验 + 机油规格快照）。
type VehicleSnapshot struct {
	ID         uint
	CustomerID uint
	OilWeight  string
	OilQuarts  string
}

// VehicleLookup 车辆查询协作方；找不到车辆时返回 gorm.ErrRecordNotFound。
type VehicleLookup interface {
	Snapshot(ctx context.Context, vehicleID uint) (*VehicleSnapshot, error)
}
