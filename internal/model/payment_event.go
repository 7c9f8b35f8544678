package model

import "time"

// PaymentEvent 支付事件处理记录，EventID 上的唯一索引是幂等去重的唯一依据：
// 该记录存在即表示事件已生成过许可证，重复投递直接返回已有结果
type PaymentEvent struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	EventID    string    `json:"event_id" gorm:"uniqueIndex;not null"`
	Processed  bool      `json:"processed" gorm:"not null;default:false"`
	LicenseKey string    `json:"license_key" gorm:"index"`
	EmailSent  *bool     `json:"email_sent,omitempty"`
	EmailError string    `json:"email_error,omitempty"`
	RawPayload string    `json:"raw_payload" gorm:"type:text"` // 原始事件快照，留作审计
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
