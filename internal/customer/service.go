package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/OilChangeTracker/OilChangeTracker/internal/ledger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/vehicle"
)

// Service 客户档案用例：建档、查询、搜索、合并。
// 建档即挂一个空的 active 计划，后续授予/扣减都锚在这个计划上。
type Service struct {
	db    *gorm.DB
	repo  *Repo
	plans *ledger.Service
}

func NewService(db *gorm.DB, plans *ledger.Service) *Service {
	return &Service{db: db, repo: NewRepo(db), plans: plans}
}

// CreateInput 建档入参。
type CreateInput struct {
	FirstName string
	LastName  string
	Phone     string
	Landline  string
	Email     string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Customer, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" && last == "" {
		return nil, fmt.Errorf("%w: customer name required", ledger.ErrValidation)
	}

	c := &Customer{
		FirstName: first,
		LastName:  last,
		Phone:     NormalizePhone(in.Phone),
		Landline:  NormalizePhone(in.Landline),
		Email:     strings.TrimSpace(in.Email),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, c); err != nil {
			return err
		}
		// 自动挂空计划（total=0, remaining=0, active）
		_, err := s.plans.EnsurePlan(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*Customer, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	c, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: customer %d", ledger.ErrNotFound, id)
	}
	return c, err
}

func (s *Service) Search(ctx context.Context, term string) ([]Customer, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.Search(ctx, term)
}

// UpdateInput 档案更新；nil 字段不修改。
type UpdateInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Landline  *string
	Email     *string
}

func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*Customer, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		c.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		c.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		c.Phone = NormalizePhone(*in.Phone)
	}
	if in.Landline != nil {
		c.Landline = NormalizePhone(*in.Landline)
	}
	if in.Email != nil {
		c.Email = strings.TrimSpace(*in.Email)
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) AddContact(ctx context.Context, ct *Contact) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	if strings.TrimSpace(ct.ContactName) == "" {
		return fmt.Errorf("%w: contact name required", ledger.ErrValidation)
	}
	if _, err := s.Get(ctx, ct.CustomerID); err != nil {
		return err
	}
	ct.Mobile = NormalizePhone(ct.Mobile)
	ct.Landline = NormalizePhone(ct.Landline)
	return s.repo.CreateContact(ctx, ct)
}

func (s *Service) ListContacts(ctx context.Context, customerID uint) ([]Contact, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.ListContacts(ctx, customerID)
}

// Merge 管理员合并重复客户：src 的车辆/联系人/台账全部改挂到 dst，
// src 的 active 余额并入 dst 的 active 计划（台账行随行迁移，
// 求和不变式保持成立），src 的计划转为 dst 名下的 inactive 历史，
// 最后删除 src 客户行。合并后每客户仍然只有一个 active 计划。
func (s *Service) Merge(ctx context.Context, srcID, dstID uint) (*Customer, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if srcID == dstID {
		return nil, fmt.Errorf("%w: cannot merge a customer into itself", ledger.ErrValidation)
	}

	dst, err := s.Get(ctx, dstID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, srcID); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 子记录改挂（历史永不删除）
		if err := tx.Model(&vehicle.Vehicle{}).
			Where("customer_id = ?", srcID).
			Update("customer_id", dstID).Error; err != nil {
			return err
		}
		if err := tx.Model(&vehicle.Vehicle{}).
			Where("driver_id = ?", srcID).
			Update("driver_id", dstID).Error; err != nil {
			return err
		}
		if err := tx.Model(&Contact{}).
			Where("customer_id = ?", srcID).
			Update("customer_id", dstID).Error; err != nil {
			return err
		}
		if err := tx.Model(&ledger.Entry{}).
			Where("customer_id = ?", srcID).
			Update("customer_id", dstID).Error; err != nil {
			return err
		}

		// 余额折算：src 的 active 余额作为一条授予行进入 dst
		plans := ledger.NewRepo(tx)
		srcPlan, err := plans.ActivePlan(ctx, srcID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		dstPlan, err := s.plans.EnsurePlan(ctx, tx, dstID)
		if err != nil {
			return err
		}

		// src 的台账行已经整体改挂到 dst，余额跟着行走：
		// 这里只把 dst 计划的余额抬高同样的量，不再另写折算行，
		// 否则同一笔授予会在台账里出现两次。
		if srcPlan != nil && srcPlan.Remaining > 0 {
			dstPlan.Remaining += srcPlan.Remaining
			if dstPlan.TotalAllowed < dstPlan.Remaining {
				dstPlan.TotalAllowed = dstPlan.Remaining
			}
			if err := plans.SavePlan(ctx, dstPlan); err != nil {
				return err
			}
		}

		// src 的计划全部转为 dst 名下的 inactive 历史
		if err := tx.Model(&ledger.Plan{}).
			Where("customer_id = ?", srcID).
			Updates(map[string]interface{}{"customer_id": dstID, "active": false}).Error; err != nil {
			return err
		}
		// 确保 dst 只剩一个 active 计划
		if err := plans.DeactivatePlans(ctx, dstID, dstPlan.ID); err != nil {
			return err
		}

		return s.repo.WithTx(tx).Delete(ctx, srcID)
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}
