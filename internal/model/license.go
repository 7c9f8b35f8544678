package model

import (
	"time"
)

// License 一个许可证最多绑定一台机器
// 不变式: Activated == true 当且仅当 MachineID 非空；
// MachineID 一旦写入非空值 M，只允许 M 自己重复确认，不允许静默改绑其他机器
type License struct {
	Key           string     `json:"key" gorm:"primaryKey"`
	Activated     bool       `json:"activated" gorm:"not null;default:false"`
	Plan          string     `json:"plan"`
	MachineID     string     `json:"machine_id" gorm:"index"`
	UserID        string     `json:"user_id"`
	OriginEventID string     `json:"origin_event_id" gorm:"index"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
}
