package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// WithTx 返回共享同一事务句柄的 Repo，用于把多次写放进一个事务。
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{db: tx}
}

// ActivePlan 返回客户当前的 active 计划。
// 历史数据里可能存在多个 active 行（老版本合并遗留），取最新创建的一个。
func (r *Repo) ActivePlan(ctx context.Context, customerID uint) (*Plan, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p Plan
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND active = ?", customerID, true).
		Order("id desc").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) CreatePlan(ctx context.Context, p *Plan) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) SavePlan(ctx context.Context, p *Plan) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Save(p).Error
}

// DeactivatePlans 把客户名下除 keepID 外的所有计划置为 inactive。
// 这是“每客户一个 active 计划”的执行点（MySQL 没有 partial unique index）。
func (r *Repo) DeactivatePlans(ctx context.Context, customerID, keepID uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Model(&Plan{}).
		Where("customer_id = ? AND id <> ?", customerID, keepID).
		Update("active", false).Error
}

func (r *Repo) CreateEntry(ctx context.Context, e *Entry) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repo) SaveEntry(ctx context.Context, e *Entry) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Save(e).Error
}

// FindEntry 按 id + 客户归属查找台账记录；归属不符视同不存在。
func (r *Repo) FindEntry(ctx context.Context, customerID, entryID uint) (*Entry, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var e Entry
	err := r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", entryID, customerID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repo) ListEntries(ctx context.Context, customerID uint) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var entries []Entry
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("occurred_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SumDeltas 台账重建视角下的净变动（对账/测试用）。
func (r *Repo) SumDeltas(ctx context.Context, customerID uint) (int, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var sum *int
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Select("SUM(delta)").
		Where("customer_id = ?", customerID).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
