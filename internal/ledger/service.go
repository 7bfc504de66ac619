package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

const noteMaxLen = 255

// Service 封装计划/台账的余额核心用例（不依赖 HTTP），便于复用和测试。
//
// 不变式：任意一串 Grant/Deduct/Restore/DeleteEntry 之后，
// 客户台账 delta 之和等于 active 计划相对初始基线的净变动；
// EditEntry 只改描述性字段，永远不影响这个和。
// SetBalance 是唯一的例外（管理员逃生口，见下）。
type Service struct {
	db       *gorm.DB
	repo     *Repo
	vehicles VehicleLookup
}

func NewService(db *gorm.DB, vehicles VehicleLookup) *Service {
	return &Service{db: db, repo: NewRepo(db), vehicles: vehicles}
}

// ParseEntryDate 解析 YYYY-MM-DD 业务日期；空串取当前时间。
func ParseEntryDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", ErrValidation, s)
	}
	return t, nil
}

func validateNote(note string) error {
	if utf8.RuneCountInString(note) > noteMaxLen {
		return fmt.Errorf("%w: note longer than %d characters", ErrValidation, noteMaxLen)
	}
	return nil
}

// EnsurePlan 给新客户建一个空的 active 计划（total=0, remaining=0）。
// 建档时自动调用，之后 Grant 才会真正放余额进去。
func (s *Service) EnsurePlan(ctx context.Context, tx *gorm.DB, customerID uint) (*Plan, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if p, err := repo.ActivePlan(ctx, customerID); err == nil {
		return p, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	p := &Plan{CustomerID: customerID, TotalAllowed: 0, Remaining: 0, Active: true}
	if err := repo.CreatePlan(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ActivePlan 当前余额投影（供展示层渲染）。
func (s *Service) ActivePlan(ctx context.Context, customerID uint) (*Plan, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	p, err := s.repo.ActivePlan(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: active plan for customer %d", ErrNotFound, customerID)
	}
	return p, err
}

// ListEntries 客户台账（新到旧）。
func (s *Service) ListEntries(ctx context.Context, customerID uint) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.ListEntries(ctx, customerID)
}

// Grant 授予 quantity 次免费机油更换（例如购胎促销）。
// 计划上限与余额重新对齐：total_allowed = max(total_allowed, remaining)，
// 这是“上限跟随当前余额”的刻意策略，不是累计授予总量。
func (s *Service) Grant(ctx context.Context, customerID uint, quantity int, note, date string) (*Plan, *Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil, fmt.Errorf("service not initialized")
	}
	if quantity <= 0 {
		return nil, nil, fmt.Errorf("%w: grant quantity must be positive, got %d", ErrValidation, quantity)
	}
	if err := validateNote(note); err != nil {
		return nil, nil, err
	}
	occurredAt, err := ParseEntryDate(date)
	if err != nil {
		return nil, nil, err
	}

	var (
		plan  *Plan
		entry *Entry
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		p, err := repo.ActivePlan(ctx, customerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: active plan for customer %d", ErrNotFound, customerID)
		}
		if err != nil {
			return err
		}

		p.Remaining += quantity
		if p.TotalAllowed < p.Remaining {
			p.TotalAllowed = p.Remaining
		}
		if err := repo.SavePlan(ctx, p); err != nil {
			return err
		}

		e := &Entry{
			CustomerID: customerID,
			Delta:      quantity,
			Note:       note,
			OccurredAt: occurredAt,
		}
		if err := repo.CreateEntry(ctx, e); err != nil {
			return err
		}

		plan, entry = p, e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return plan, entry, nil
}

// Deduct 使用一次免费机油更换，绑定到具体车辆，并把当时已知的
// 机油规格（粘度/容量）快照到台账行上。
func (s *Service) Deduct(ctx context.Context, customerID, vehicleID uint, mileage int, date, note string) (*Plan, *Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil, fmt.Errorf("service not initialized")
	}
	if s.vehicles == nil {
		return nil, nil, fmt.Errorf("vehicle lookup not configured")
	}
	if err := validateNote(note); err != nil {
		return nil, nil, err
	}
	occurredAt, err := ParseEntryDate(date)
	if err != nil {
		return nil, nil, err
	}
	if note == "" {
		note = "Oil change used"
	}

	v, err := s.vehicles.Snapshot(ctx, vehicleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("%w: vehicle %d", ErrNotFound, vehicleID)
	}
	if err != nil {
		return nil, nil, err
	}
	if v.CustomerID != customerID {
		return nil, nil, fmt.Errorf("%w: vehicle %d", ErrOwnership, vehicleID)
	}

	var (
		plan  *Plan
		entry *Entry
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		p, err := repo.ActivePlan(ctx, customerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: active plan for customer %d", ErrNotFound, customerID)
		}
		if err != nil {
			return err
		}
		if p.Remaining <= 0 {
			return fmt.Errorf("%w: customer %d", ErrInsufficientBalance, customerID)
		}

		p.Remaining--
		if err := repo.SavePlan(ctx, p); err != nil {
			return err
		}

		e := &Entry{
			CustomerID: customerID,
			VehicleID:  &v.ID,
			Delta:      -1,
			Note:       note,
			OilWeight:  v.OilWeight,
			OilQuarts:  v.OilQuarts,
			OccurredAt: occurredAt,
		}
		if mileage > 0 {
			m := mileage
			e.Mileage = &m
		}
		if err := repo.CreateEntry(ctx, e); err != nil {
			return err
		}

		plan, entry = p, e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return plan, entry, nil
}

// Restore 撤销一次误扣（前台点错），余额 +1 但不能超过计划上限。
func (s *Service) Restore(ctx context.Context, customerID uint, note string) (*Plan, *Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil, fmt.Errorf("service not initialized")
	}
	if note == "" {
		note = "Restored oil change"
	}
	if err := validateNote(note); err != nil {
		return nil, nil, err
	}

	var (
		plan  *Plan
		entry *Entry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		p, err := repo.ActivePlan(ctx, customerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: active plan for customer %d", ErrNotFound, customerID)
		}
		if err != nil {
			return err
		}
		if p.Remaining >= p.TotalAllowed {
			return fmt.Errorf("%w: plan already full", ErrValidation)
		}

		p.Remaining++
		if err := repo.SavePlan(ctx, p); err != nil {
			return err
		}

		e := &Entry{
			CustomerID: customerID,
			Delta:      1,
			Note:       note,
			OccurredAt: time.Now(),
		}
		if err := repo.CreateEntry(ctx, e); err != nil {
			return err
		}

		plan, entry = p, e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return plan, entry, nil
}

// EditEntryInput EditEntry 的可选入参；nil / 空串表示不修改对应字段。
type EditEntryInput struct {
	Mileage *int
	Date    string
	Note    *string
}

// EditEntry 只修改台账行的描述性字段（里程/日期/备注）。
// delta 永远不动，因此余额也永远不动 —— “发生了什么”和“记了多少账”分离。
func (s *Service) EditEntry(ctx context.Context, customerID, entryID uint, in EditEntryInput) (*Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	e, err := s.repo.FindEntry(ctx, customerID, entryID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: ledger entry %d", ErrNotFound, entryID)
	}
	if err != nil {
		return nil, err
	}

	if in.Mileage != nil {
		m := *in.Mileage
		e.Mileage = &m
	}
	if in.Date != "" {
		occurredAt, err := ParseEntryDate(in.Date)
		if err != nil {
			return nil, err
		}
		e.OccurredAt = occurredAt
	}
	if in.Note != nil {
		if err := validateNote(*in.Note); err != nil {
			return nil, err
		}
		e.Note = *in.Note
	}

	if err := s.repo.SaveEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEntry 删除一条台账记录，并先把它对余额的影响原样回退：
// remaining -= delta（删除扣减行会把余额加回来，删除授予行会扣掉）。
// 回退必须落在 active 计划上；计划不在了就是用户可见的失败，不能静默吞掉。
func (s *Service) DeleteEntry(ctx context.Context, customerID, entryID uint) (*Plan, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	var plan *Plan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		e, err := repo.FindEntry(ctx, customerID, entryID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: ledger entry %d", ErrNotFound, entryID)
		}
		if err != nil {
			return err
		}

		p, err := repo.ActivePlan(ctx, customerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: cannot reverse entry %d", ErrNoActivePlan, entryID)
		}
		if err != nil {
			return err
		}

		p.Remaining -= e.Delta
		if err := repo.SavePlan(ctx, p); err != nil {
			return err
		}
		if err := removeEntry(ctx, tx, e); err != nil {
			return err
		}

		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// removeEntry 是“硬删除 vs 追加冲正行”的唯一切换点。
// 目前沿用硬删除（历史行为）；要改成 append-only 审计时，
// 只需把这里换成写一条 delta 取反、标记为 correction 的新行。
func removeEntry(ctx context.Context, tx *gorm.DB, e *Entry) error {
	return tx.WithContext(ctx).Delete(&Entry{}, e.ID).Error
}

// SetBalance 管理员直接改余额（可为负），total_allowed = max(0, remaining)，
// 且不写台账行 —— 刻意绕过“台账是事实来源”不变式的逃生口，
// 只用于纠偏/迁移，不属于正常记账流程。
func (s *Service) SetBalance(ctx context.Context, customerID uint, newRemaining int) (*Plan, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	var plan *Plan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		p, err := repo.ActivePlan(ctx, customerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: customer %d", ErrNoActivePlan, customerID)
		}
		if err != nil {
			return err
		}

		p.Remaining = newRemaining
		p.TotalAllowed = newRemaining
		if p.TotalAllowed < 0 {
			p.TotalAllowed = 0
		}
		if err := repo.SavePlan(ctx, p); err != nil {
			return err
		}

		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}
