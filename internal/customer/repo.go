package customer

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const searchLimit = 50

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// WithTx 返回共享事务句柄的 Repo。
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{db: tx}
}

func (r *Repo) Create(ctx context.Context, c *Customer) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) Save(ctx context.Context, c *Customer) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *Repo) FindByID(ctx context.Context, id uint) (*Customer, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// Exists 客户是否存在（车辆服务做归属前置校验用）。
func (r *Repo) Exists(ctx context.Context, id uint) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&Customer{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repo) FindByPhone(ctx context.Context, phone string) (*Customer, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Customer
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// Search 店面搜索：
// - 含数字的输入按电话号码模糊匹配
// - 单个词匹配 first_name 或 last_name
// - 两个以上词按 "First Last" 拆开同时匹配
func (r *Repo) Search(ctx context.Context, term string) ([]Customer, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	q := r.db.WithContext(ctx).Model(&Customer{}).Limit(searchLimit)

	if strings.ContainsAny(term, "0123456789") {
		// 库里存的是 (###) ###-#### 格式，原样和归一化后各试一次
		normalized := NormalizePhone(term)
		if normalized == "" {
			normalized = term
		}
		var res []Customer
		err := q.Where("phone LIKE ? OR phone LIKE ?", "%"+term+"%", "%"+normalized+"%").
			Find(&res).Error
		return res, err
	}

	parts := strings.Fields(term)
	var res []Customer
	if len(parts) == 1 {
		like := "%" + term + "%"
		err := q.Where("LOWER(first_name) LIKE LOWER(?) OR LOWER(last_name) LIKE LOWER(?)", like, like).
			Find(&res).Error
		return res, err
	}

	first, last := parts[0], strings.Join(parts[1:], " ")
	err := q.Where("LOWER(first_name) LIKE LOWER(?) AND LOWER(last_name) LIKE LOWER(?)",
		"%"+first+"%", "%"+last+"%").
		Find(&res).Error
	return res, err
}

// ListAll 全量导出用，按姓+名排序。
func (r *Repo) ListAll(ctx context.Context) ([]Customer, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var res []Customer
	err := r.db.WithContext(ctx).Order("last_name, first_name").Find(&res).Error
	return res, err
}

func (r *Repo) CreateContact(ctx context.Context, ct *Contact) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(ct).Error
}

func (r *Repo) ListContacts(ctx context.Context, customerID uint) ([]Contact, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var res []Contact
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("preferred desc, contact_name").
		Find(&res).Error
	return res, err
}

func (r *Repo) Delete(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Delete(&Customer{}, id).Error
}
