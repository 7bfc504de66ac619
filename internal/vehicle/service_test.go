package vehicle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/OilChangeTracker/OilChangeTracker/internal/common/config"
	"github.com/OilChangeTracker/OilChangeTracker/internal/ledger"
)

type stubOwners map[uint]bool

func (s stubOwners) Exists(_ context.Context, id uint) (bool, error) {
	return s[id], nil
}

func newVehicleService(t *testing.T, specJSON string) (*Service, *Repo) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vehicle_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Vehicle{}, &VinOilSpec{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	specs := &SpecTable{}
	if specJSON != "" {
		specs, err = LoadSpecTable(writeSpecFile(t, specJSON))
		if err != nil {
			t.Fatalf("load specs: %v", err)
		}
	}

	repo := NewRepo(db)
	plates := NewPlateLookup(config.PlateLookupConfig{Provider: "none"})
	svc := NewService(repo, stubOwners{1: true, 2: true}, nil, plates, specs, nil)
	return svc, repo
}

func TestAddVehicleRequiresExistingOwner(t *testing.T) {
	svc, _ := newVehicleService(t, "")
	ctx := context.Background()

	if _, err := svc.Add(ctx, AddInput{CustomerID: 99, Make: "Honda"}); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}
	if _, err := svc.Add(ctx, AddInput{}); !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero customer_id, got %v", err)
	}
}

func TestAddVehicleDemoPlateFillsVIN(t *testing.T) {
	svc, _ := newVehicleService(t, "")
	ctx := context.Background()

	v, err := svc.Add(ctx, AddInput{CustomerID: 1, Plate: "test123"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if v.Plate != "TEST123" {
		t.Fatalf("plate not uppercased: %q", v.Plate)
	}
	if v.VIN != "1FAFP404XWF123456" {
		t.Fatalf("demo plate should resolve VIN, got %q", v.VIN)
	}

	// 未知车牌不报错，VIN 留空
	v2, err := svc.Add(ctx, AddInput{CustomerID: 1, Plate: "ZZZ999"})
	if err != nil {
		t.Fatalf("add unknown plate: %v", err)
	}
	if v2.VIN != "" {
		t.Fatalf("unknown plate resolved VIN %q", v2.VIN)
	}
}

func TestRefreshSpecsMatchesTableAndLearns(t *testing.T) {
	svc, repo := newVehicleService(t, sampleSpecs)
	ctx := context.Background()

	v, err := svc.Add(ctx, AddInput{
		CustomerID: 1,
		Year:       "2015",
		Make:       "Honda",
		Model:      "Civic",
		VIN:        "2HGFB2F50FH123456",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// 无 NHTSA 客户端，engine_text 为空，落到兜底行
	refreshed, err := svc.RefreshSpecs(ctx, v.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.OilType != "blend" || refreshed.OilWeight != "5W-20" || refreshed.OilQuarts != "4.4" {
		t.Fatalf("spec not applied: %+v", refreshed)
	}

	learned, err := repo.FindSpecByVIN(ctx, v.VIN)
	if err != nil {
		t.Fatalf("learned spec missing: %v", err)
	}
	if learned.OilWeight != "5W-20" || learned.UsageCount != 1 {
		t.Fatalf("learned spec wrong: %+v", learned)
	}

	// 第二次刷新直接吃缓存并累加使用次数
	if _, err := svc.RefreshSpecs(ctx, v.ID); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	learned, err = repo.FindSpecByVIN(ctx, v.VIN)
	if err != nil {
		t.Fatalf("learned spec lookup: %v", err)
	}
	if learned.UsageCount != 2 {
		t.Fatalf("usage count = %d, want 2", learned.UsageCount)
	}
}

func TestRefreshSpecsNoMatch(t *testing.T) {
	svc, _ := newVehicleService(t, sampleSpecs)
	ctx := context.Background()

	v, err := svc.Add(ctx, AddInput{CustomerID: 1, Year: "1999", Make: "Yugo", Model: "GV"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.RefreshSpecs(ctx, v.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// 车辆规格字段保持原样
	got, err := svc.Get(ctx, v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OilType != "" || got.OilWeight != "" {
		t.Fatalf("vehicle mutated on failed refresh: %+v", got)
	}
}

func TestSnapshotCarriesOwnerAndOilSpec(t *testing.T) {
	svc, repo := newVehicleService(t, "")
	ctx := context.Background()

	v, err := svc.Add(ctx, AddInput{CustomerID: 2, Make: "Toyota", Model: "Camry"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	v.OilWeight = "0W-20"
	v.OilQuarts = "4.5"
	if err := repo.Save(ctx, v); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := repo.Snapshot(ctx, v.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.CustomerID != 2 || snap.OilWeight != "0W-20" || snap.OilQuarts != "4.5" {
		t.Fatalf("snapshot wrong: %+v", snap)
	}
}
