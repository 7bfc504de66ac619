package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubVehicles struct {
	vehicles map[uint]*VehicleSnapshot
}

func (s *stubVehicles) Snapshot(_ context.Context, vehicleID uint) (*VehicleSnapshot, error) {
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return v, nil
}

func newTestService(t *testing.T) (*Service, *stubVehicles) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Plan{}, &Entry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	vehicles := &stubVehicles{vehicles: map[uint]*VehicleSnapshot{}}
	return NewService(db, vehicles), vehicles
}

func mustEnsurePlan(t *testing.T, svc *Service, customerID uint) *Plan {
	t.Helper()
	p, err := svc.EnsurePlan(context.Background(), nil, customerID)
	if err != nil {
		t.Fatalf("EnsurePlan: %v", err)
	}
	return p
}

func ledgerSum(t *testing.T, svc *Service, customerID uint) int {
	t.Helper()
	sum, err := svc.repo.SumDeltas(context.Background(), customerID)
	if err != nil {
		t.Fatalf("SumDeltas: %v", err)
	}
	return sum
}

// 规格场景：0/0 → Grant(4) → Deduct → Edit → Delete，余额一路可验证。
func TestGrantDeductEditDeleteScenario(t *testing.T) {
	svc, vehicles := newTestService(t)
	ctx := context.Background()
	const customerID = 1
	vehicles.vehicles[7] = &VehicleSnapshot{ID: 7, CustomerID: customerID, OilWeight: "5W-30", OilQuarts: "5.7"}

	p := mustEnsurePlan(t, svc, customerID)
	if p.Remaining != 0 || p.TotalAllowed != 0 {
		t.Fatalf("expected empty plan, got remaining=%d total=%d", p.Remaining, p.TotalAllowed)
	}

	p, _, err := svc.Grant(ctx, customerID, 4, "promo", "")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if p.Remaining != 4 || p.TotalAllowed != 4 {
		t.Fatalf("after grant: remaining=%d total=%d, want 4/4", p.Remaining, p.TotalAllowed)
	}

	p, entry, err := svc.Deduct(ctx, customerID, 7, 30000, "", "")
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if p.Remaining != 3 {
		t.Fatalf("after deduct: remaining=%d, want 3", p.Remaining)
	}
	if entry.Delta != -1 {
		t.Fatalf("deduct entry delta=%d, want -1", entry.Delta)
	}
	if entry.OilWeight != "5W-30" || entry.OilQuarts != "5.7" {
		t.Fatalf("oil spec snapshot missing: %q/%q", entry.OilWeight, entry.OilQuarts)
	}
	if entry.Mileage == nil || *entry.Mileage != 30000 {
		t.Fatalf("mileage not captured: %v", entry.Mileage)
	}

	newMileage := 30500
	edited, err := svc.EditEntry(ctx, customerID, entry.ID, EditEntryInput{Mileage: &newMileage})
	if err != nil {
		t.Fatalf("EditEntry: %v", err)
	}
	if *edited.Mileage != 30500 {
		t.Fatalf("edit mileage=%d, want 30500", *edited.Mileage)
	}
	if edited.Delta != -1 {
		t.Fatalf("edit must not touch delta, got %d", edited.Delta)
	}
	p, err = svc.ActivePlan(ctx, customerID)
	if err != nil {
		t.Fatalf("ActivePlan: %v", err)
	}
	if p.Remaining != 3 {
		t.Fatalf("edit changed remaining to %d", p.Remaining)
	}

	p, err = svc.DeleteEntry(ctx, customerID, entry.ID)
	if err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if p.Remaining != 4 {
		t.Fatalf("after delete: remaining=%d, want 4", p.Remaining)
	}
	if _, err := svc.repo.FindEntry(ctx, customerID, entry.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("entry should be gone, got err=%v", err)
	}

	// 台账求和 == 余额相对基线(0)的净变动
	if sum := ledgerSum(t, svc, customerID); sum != p.Remaining {
		t.Fatalf("ledger sum=%d != remaining=%d", sum, p.Remaining)
	}
}

func TestGrantRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustEnsurePlan(t, svc, 1)

	for _, q := range []int{0, -3} {
		if _, _, err := svc.Grant(ctx, 1, q, "", ""); !errors.Is(err, ErrValidation) {
			t.Fatalf("Grant(%d): err=%v, want ErrValidation", q, err)
		}
	}

	// 状态完全未动：没有台账行，计划保持 0/0
	if sum := ledgerSum(t, svc, 1); sum != 0 {
		t.Fatalf("rejected grant wrote ledger rows, sum=%d", sum)
	}
	p, err := svc.ActivePlan(ctx, 1)
	if err != nil {
		t.Fatalf("ActivePlan: %v", err)
	}
	if p.Remaining != 0 || p.TotalAllowed != 0 {
		t.Fatalf("rejected grant mutated plan: %d/%d", p.Remaining, p.TotalAllowed)
	}
}

func TestGrantWithoutActivePlan(t *testing.T) {
	svc, _ := newTestService(t)
	if _, _, err := svc.Grant(context.Background(), 99, 2, "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestGrantMalformedDate(t *testing.T) {
	svc, _ := newTestService(t)
	mustEnsurePlan(t, svc, 1)
	if _, _, err := svc.Grant(context.Background(), 1, 1, "", "08/29/2026"); !errors.Is(err, ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
}

func TestDeductInsufficientBalance(t *testing.T) {
	svc, vehicles := newTestService(t)
	ctx := context.Background()
	vehicles.vehicles[3] = &VehicleSnapshot{ID: 3, CustomerID: 1}
	mustEnsurePlan(t, svc, 1)

	_, _, err := svc.Deduct(ctx, 1, 3, 12000, "", "")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err=%v, want ErrInsufficientBalance", err)
	}

	// 失败的扣减不能留下任何痕迹
	if sum := ledgerSum(t, svc, 1); sum != 0 {
		t.Fatalf("failed deduct wrote ledger rows, sum=%d", sum)
	}
	p, err := svc.ActivePlan(ctx, 1)
	if err != nil {
		t.Fatalf("ActivePlan: %v", err)
	}
	if p.Remaining != 0 {
		t.Fatalf("failed deduct changed remaining to %d", p.Remaining)
	}
}

func TestDeductOwnership(t *testing.T) {
	svc, vehicles := newTestService(t)
	ctx := context.Background()
	vehicles.vehicles[5] = &VehicleSnapshot{ID: 5, CustomerID: 2} // 别人的车
	mustEnsurePlan(t, svc, 1)
	if _, _, err := svc.Grant(ctx, 1, 1, "", ""); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if _, _, err := svc.Deduct(ctx, 1, 5, 9000, "", ""); !errors.Is(err, ErrOwnership) {
		t.Fatalf("err=%v, want ErrOwnership", err)
	}
	if _, _, err := svc.Deduct(ctx, 1, 404, 9000, "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing vehicle: err=%v, want ErrNotFound", err)
	}
}

// DeleteEntry 必须是创建该行操作的精确逆操作。
func TestDeleteEntryIsExactInverse(t *testing.T) {
	svc, vehicles := newTestService(t)
	ctx := context.Background()
	vehicles.vehicles[2] = &VehicleSnapshot{ID: 2, CustomerID: 1}
	mustEnsurePlan(t, svc, 1)

	// Grant(3) → Delete 恢复授予前余额
	p, entry, err := svc.Grant(ctx, 1, 3, "tires", "")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	before := p.Remaining - 3
	p, err = svc.DeleteEntry(ctx, 1, entry.ID)
	if err != nil {
		t.Fatalf("DeleteEntry(grant): %v", err)
	}
	if p.Remaining != before {
		t.Fatalf("delete of grant: remaining=%d, want %d", p.Remaining, before)
	}

	// Grant(2), Deduct → Delete 恢复扣减前余额
	if _, _, err := svc.Grant(ctx, 1, 2, "", ""); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	p, entry, err = svc.Deduct(ctx, 1, 2, 45000, "", "")
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if p.Remaining != 1 {
		t.Fatalf("remaining=%d, want 1", p.Remaining)
	}
	p, err = svc.DeleteEntry(ctx, 1, entry.ID)
	if err != nil {
		t.Fatalf("DeleteEntry(deduct): %v", err)
	}
	if p.Remaining != 2 {
		t.Fatalf("delete of deduct: remaining=%d, want 2", p.Remaining)
	}

	if sum := ledgerSum(t, svc, 1); sum != p.Remaining {
		t.Fatalf("ledger sum=%d != remaining=%d", sum, p.Remaining)
	}
}

func TestDeleteEntryErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustEnsurePlan(t, svc, 1)

	if _, err := svc.DeleteEntry(ctx, 1, 12345); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing entry: err=%v, want ErrNotFound", err)
	}

	// 有台账行但 active 计划没了：回退无处落账，必须显式失败
	_, entry, err := svc.Grant(ctx, 1, 2, "", "")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := svc.db.Model(&Plan{}).Where("customer_id = ?", 1).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.DeleteEntry(ctx, 1, entry.ID); !errors.Is(err, ErrNoActivePlan) {
		t.Fatalf("err=%v, want ErrNoActivePlan", err)
	}
}

func TestRestoreCappedAtTotalAllowed(t *testing.T) {
	svc, vehicles := newTestService(t)
	ctx := context.Background()
	vehicles.vehicles[1] = &VehicleSnapshot{ID: 1, CustomerID: 1}
	mustEnsurePlan(t, svc, 1)

	if _, _, err := svc.Restore(ctx, 1, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("restore on full plan: err=%v, want ErrValidation", err)
	}

	if _, _, err := svc.Grant(ctx, 1, 2, "", ""); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if _, _, err := svc.Deduct(ctx, 1, 1, 1000, "", ""); err != nil {
		t.Fatalf("Deduct: %v", err)
	}

	p, entry, err := svc.Restore(ctx, 1, "")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if p.Remaining != 2 || entry.Delta != 1 {
		t.Fatalf("restore: remaining=%d delta=%d, want 2/+1", p.Remaining, entry.Delta)
	}
	if sum := ledgerSum(t, svc, 1); sum != p.Remaining {
		t.Fatalf("ledger sum=%d != remaining=%d", sum, p.Remaining)
	}
}

// SetBalance 是刻意绕过台账不变式的管理员逃生口 —— 断言它
// 确实打破了 sum(delta) == remaining，与普通 bug 区分开。
func TestSetBalanceBypassesLedger(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustEnsurePlan(t, svc, 1)
	if _, _, err := svc.Grant(ctx, 1, 3, "", ""); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	sumBefore := ledgerSum(t, svc, 1)

	p, err := svc.SetBalance(ctx, 1, -2)
	if err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if p.Remaining != -2 {
		t.Fatalf("remaining=%d, want -2", p.Remaining)
	}
	if p.TotalAllowed != 0 {
		t.Fatalf("total_allowed=%d, want 0", p.TotalAllowed)
	}

	// 没写台账行，不变式被有意打破
	if sum := ledgerSum(t, svc, 1); sum != sumBefore {
		t.Fatalf("SetBalance wrote ledger rows: sum %d -> %d", sumBefore, sum)
	}
	if sum := ledgerSum(t, svc, 1); sum == p.Remaining {
		t.Fatalf("expected invariant intentionally violated, but sum=%d == remaining", sum)
	}

	// 正余额时 total_allowed 跟随
	p, err = svc.SetBalance(ctx, 1, 5)
	if err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if p.Remaining != 5 || p.TotalAllowed != 5 {
		t.Fatalf("remaining/total=%d/%d, want 5/5", p.Remaining, p.TotalAllowed)
	}
}

func TestEditEntryDoesNotTouchBalance(t *testing.T) {
	svc, vehicles := newTestService(t)
	ctx := context.Background()
	vehicles.vehicles[9] = &VehicleSnapshot{ID: 9, CustomerID: 4}
	mustEnsurePlan(t, svc, 4)
	if _, _, err := svc.Grant(ctx, 4, 2, "", ""); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	_, entry, err := svc.Deduct(ctx, 4, 9, 60000, "", "first visit")
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	sumBefore := ledgerSum(t, svc, 4)

	note := "corrected note"
	if _, err := svc.EditEntry(ctx, 4, entry.ID, EditEntryInput{Date: "2026-01-15", Note: &note}); err != nil {
		t.Fatalf("EditEntry: %v", err)
	}
	if sum := ledgerSum(t, svc, 4); sum != sumBefore {
		t.Fatalf("edit changed ledger sum %d -> %d", sumBefore, sum)
	}

	// 归属错误的编辑视同不存在
	if _, err := svc.EditEntry(ctx, 5, entry.ID, EditEntryInput{Note: &note}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign edit: err=%v, want ErrNotFound", err)
	}
}

func TestActivePlanPicksLatest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// 老数据可能残留两个 active 计划；选择必须确定为最新的那个
	old := &Plan{CustomerID: 8, TotalAllowed: 4, Remaining: 1, Active: true}
	if err := svc.repo.CreatePlan(ctx, old); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	latest := &Plan{CustomerID: 8, TotalAllowed: 6, Remaining: 6, Active: true}
	if err := svc.repo.CreatePlan(ctx, latest); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	p, err := svc.ActivePlan(ctx, 8)
	if err != nil {
		t.Fatalf("ActivePlan: %v", err)
	}
	if p.ID != latest.ID {
		t.Fatalf("picked plan %d, want latest %d", p.ID, latest.ID)
	}

	// DeactivatePlans 收敛回单 active
	if err := svc.repo.DeactivatePlans(ctx, 8, latest.ID); err != nil {
		t.Fatalf("DeactivatePlans: %v", err)
	}
	var count int64
	if err := svc.db.Model(&Plan{}).Where("customer_id = ? AND active = ?", 8, true).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("active plans=%d, want 1", count)
	}
}

func TestNoteLengthCap(t *testing.T) {
	svc, _ := newTestService(t)
	mustEnsurePlan(t, svc, 1)
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'x'
	}
	if _, _, err := svc.Grant(context.Background(), 1, 1, string(long), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
}
