package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/OilChangeTracker/OilChangeTracker/internal/customer"
	"github.com/OilChangeTracker/OilChangeTracker/internal/ledger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/vehicle"
)

func TestRunOnceSnapshotsAllTables(t *testing.T) {
	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "backup_test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&customer.Customer{}, &customer.Contact{},
		&vehicle.Vehicle{}, &vehicle.VinOilSpec{},
		&ledger.Plan{}, &ledger.Entry{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := db.Create(&customer.Customer{FirstName: "Pat", LastName: "Lee"}).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	if err := db.Create(&ledger.Plan{CustomerID: 1, TotalAllowed: 4, Remaining: 4, Active: true}).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	backupsDir := filepath.Join(dir, "backups")
	b := New(db, backupsDir, nil)

	path, err := b.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snapshot struct {
		CreatedAt string                              `json:"created_at"`
		Tables    map[string][]map[string]interface{} `json:"tables"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("snapshot malformed: %v", err)
	}
	if snapshot.CreatedAt == "" {
		t.Fatal("created_at missing")
	}

	for _, table := range backupTables {
		if _, ok := snapshot.Tables[table]; !ok {
			t.Fatalf("table %s missing from snapshot", table)
		}
	}
	if len(snapshot.Tables["customers"]) != 1 {
		t.Fatalf("customers rows = %d, want 1", len(snapshot.Tables["customers"]))
	}
	if len(snapshot.Tables["oil_change_plans"]) != 1 {
		t.Fatalf("plans rows = %d, want 1", len(snapshot.Tables["oil_change_plans"]))
	}
}
