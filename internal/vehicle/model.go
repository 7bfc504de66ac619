package vehicle

import "time"

// Vehicle vehicles 表的 GORM 模型。归属恰好一个客户；
// driver_id 可选，指向实际开车的人（车队/家庭账户）。
type Vehicle struct {
	ID         uint      `gorm:"primaryKey"`
	CustomerID uint      `gorm:"index;not null"` // 车主
	DriverID   *uint     `gorm:"index"`          // 可选的主驾驶
	Year       string    `gorm:"size:10"`
	Make       string    `gorm:"size:50"`
	Model      string    `gorm:"size:100"`
	VIN        string    `gorm:"size:30;index"`
	Plate      string    `gorm:"size:20;index"` // 统一大写
	OilType    string    `gorm:"size:20"`       // conventional / synthetic / blend
	OilQuarts  string    `gorm:"size:10"`       // 机油容量（夸脱，保留原始字符串）
	OilWeight  string    `gorm:"size:10"`       // 粘度，如 5W-30
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

// VinOilSpec 按 VIN 记住已确认的机油规格（vin_oil_specs 表）。
// 同一辆车第二次进店就不用再查 NHTSA / 规格表了。
type VinOilSpec struct {
	ID         uint      `gorm:"primaryKey"`
	VIN        string    `gorm:"size:17;uniqueIndex;not null"`
	OilWeight  string    `gorm:"size:10"`
	OilQuarts  string    `gorm:"size:10"`
	OilType    string    `gorm:"size:20"`
	UsageCount int       `gorm:"not null;default:1"` // 该规格被复用的次数
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (VinOilSpec) TableName() string {
	return "vin_oil_specs"
}
