package customer

import (
	"strings"
	"time"
)

// Customer customers 表的 GORM 模型。
// 客户独占其名下的车辆/计划/台账/联系人；删除客户只发生在管理员合并里
// （子记录全部改挂到目标客户，历史不丢）。
type Customer struct {
	ID        uint      `gorm:"primaryKey"`
	FirstName string    `gorm:"size:100;index"`
	LastName  string    `gorm:"size:100;index"`
	Phone     string    `gorm:"size:20;index"` // 归一化格式 (###) ###-####
	Landline  string    `gorm:"size:20"`
	Email     string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Customer) TableName() string {
	return "customers"
}

// Name 客户全名；last_name 为空时 first_name 里可能已经是拼好的全名。
func (c Customer) Name() string {
	if strings.TrimSpace(c.LastName) == "" {
		return strings.TrimSpace(c.FirstName)
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Contact 客户账户上的额外联系人（车队/家庭共用账户时使用）。
type Contact struct {
	ID          uint      `gorm:"primaryKey"`
	CustomerID  uint      `gorm:"index;not null"`
	ContactName string    `gorm:"size:100;not null"`
	Role        string    `gorm:"size:50"`
	Mobile      string    `gorm:"size:20"`
	Landline    string    `gorm:"size:20"`
	Email       string    `gorm:"size:255"`
	Preferred   bool      `gorm:"not null;default:false"`
	Notes       string    `gorm:"size:500"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (Contact) TableName() string {
	return "contacts"
}
