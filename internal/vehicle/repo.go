package vehicle

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/OilChangeTracker/OilChangeTracker/internal/ledger"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, v *Vehicle) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *Repo) Save(ctx context.Context, v *Vehicle) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Save(v).Error
}

func (r *Repo) FindByID(ctx context.Context, id uint) (*Vehicle, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) ListByCustomer(ctx context.Context, customerID uint) ([]Vehicle, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var vehicles []Vehicle
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc").
		Find(&vehicles).Error
	if err != nil {
		return nil, err
	}
	return vehicles, nil
}

// Snapshot 实现台账扣减需要的车辆协作查询（归属 + 机油规格快照）。
func (r *Repo) Snapshot(ctx context.Context, vehicleID uint) (*ledger.VehicleSnapshot, error) {
	v, err := r.FindByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return &ledger.VehicleSnapshot{
		ID:         v.ID,
		CustomerID: v.CustomerID,
		OilWeight:  v.OilWeight,
		OilQuarts:  v.OilQuarts,
	}, nil
}

// FindSpecByVIN 学习型规格缓存查询。
func (r *Repo) FindSpecByVIN(ctx context.Context, vin string) (*VinOilSpec, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var spec VinOilSpec
	if err := r.db.WithContext(ctx).Where("vin = ?", vin).First(&spec).Error; err != nil {
		return nil, err
	}
	return &spec, nil
}

// UpsertSpec 记录/复用一条按 VIN 学习到的机油规格；已存在则累加使用次数。
func (r *Repo) UpsertSpec(ctx context.Context, spec *VinOilSpec) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	existing, err := r.FindSpecByVIN(ctx, spec.VIN)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		spec.UsageCount = 1
		return r.db.WithContext(ctx).Create(spec).Error
	}
	if err != nil {
		return err
	}
	existing.OilWeight = spec.OilWeight
	existing.OilQuarts = spec.OilQuarts
	existing.OilType = spec.OilType
	existing.UsageCount++
	return r.db.WithContext(ctx).Save(existing).Error
}
