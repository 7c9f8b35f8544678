package model

import (
	"time"

	"gorm.io/gorm"
)

type LicenseUsage struct {
	gorm.Model
	LicenseKey string    `json:"license_key" gorm:"index"`
	MachineID  string    `json:"machine_id"`
	Action     string    `json:"action"` // "activate", "confirm", "reject" 等
	Result     string    `json:"result"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Timestamp  time.Time `json:"timestamp"`
}
