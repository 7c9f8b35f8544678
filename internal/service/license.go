package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"logpattern-license-server/internal/model"
	"logpattern-license-server/internal/payment"

	"gorm.io/gorm"
)

// 激活的读-判-写在并发冲突时重试的次数上限
const activateMaxRetries = 3

// LicenseService 许可证生命周期引擎：
// 支付事件幂等签发 + 激活仲裁。所有决策都重新读取当前状态，
// 不跨请求缓存任何记录
type LicenseService struct {
	db          *gorm.DB
	notifier    Notifier // 可为 nil，表示未配置邮件
	sheetSync   *SheetSyncService
	requirePaid bool
	logger      *slog.Logger
}

func NewLicenseService(db *gorm.DB, notifier Notifier, sheetSync *SheetSyncService, requirePaid bool, logger *slog.Logger) *LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseService{
		db:          db,
		notifier:    notifier,
		sheetSync:   sheetSync,
		requirePaid: requirePaid,
		logger:      logger,
	}
}

// IssueResult 签发结果。重复投递时 AlreadyProcessed 为 true，
// LicenseKey 为首次处理生成的密钥
type IssueResult struct {
	LicenseKey       string
	AlreadyProcessed bool
}

// IssueFromPayment 幂等签发：同一个事件ID不管投递多少次，
// 只生成一个许可证，所有响应引用同一个密钥
func (s *LicenseService) IssueFromPayment(ctx context.Context, ev payment.CompletedEvent) (*IssueResult, error) {
	db := s.db.WithContext(ctx)

	// 1. 事件记录存在即已处理，直接返回当时的结果
	var existing model.PaymentEvent
	err := db.Where("event_id = ?", ev.EventID).First(&existing).Error
	if err == nil {
		s.logger.Info("支付事件已处理过", "event_id", ev.EventID, "license_key", existing.LicenseKey)
		return &IssueResult{LicenseKey: existing.LicenseKey, AlreadyProcessed: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 支付状态检查
	if !ev.IsPaid() {
		if s.requirePaid {
			s.logger.Warn("拒绝非已支付状态的事件", "event_id", ev.EventID, "status", ev.PaymentStatus)
			return nil, ErrNotPaid
		}
		s.logger.Warn("支付状态不是已支付，宽松模式下继续签发", "event_id", ev.EventID, "status", ev.PaymentStatus)
	}

	// 3. 生成密钥
	key, err := GenerateLicenseKey()
	if err != nil {
		return nil, err
	}

	// 4-5. 许可证和事件记录在同一事务内写入，构成提交点。
	// 事件ID的唯一索引挡住并发重复投递
	now := time.Now()
	license := &model.License{
		Key:           key,
		Activated:     false,
		Plan:          ev.Plan,
		MachineID:     "",
		OriginEventID: ev.EventID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	eventRecord := &model.PaymentEvent{
		EventID:    ev.EventID,
		Processed:  true,
		LicenseKey: key,
		RawPayload: ev.Raw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(license).Error; err != nil {
			if isUniqueViolation(err) {
				// 密钥撞上已有记录，概率上几乎不可能发生，
				// 不做覆盖，留给运维介入
				return ErrKeyCollision
			}
			return err
		}
		return tx.Create(eventRecord).Error
	})
	if err != nil {
		if errors.Is(err, ErrKeyCollision) {
			s.logger.Error("许可证密钥生成冲突", "event_id", ev.EventID, "key", key)
			return nil, ErrKeyCollision
		}
		if isUniqueViolation(err) {
			// 并发投递的另一个请求先提交了，读出赢家的密钥返回
			var winner model.PaymentEvent
			if lookupErr := db.Where("event_id = ?", ev.EventID).First(&winner).Error; lookupErr == nil {
				s.logger.Info("并发重复投递，返回先到者的结果", "event_id", ev.EventID, "license_key", winner.LicenseKey)
				return &IssueResult{LicenseKey: winner.LicenseKey, AlreadyProcessed: true}, nil
			}
		}
		return nil, err
	}

	s.logger.Info("许可证签发成功", "event_id", ev.EventID, "license_key", key, "plan", ev.Plan)

	// 6. 尽力而为的通知，失败记录在事件上，不影响签发结果
	s.notify(ctx, eventRecord, ev.CustomerEmail, key, ev.Plan)

	if s.sheetSync != nil {
		go s.sheetSync.SyncLicense(license)
	}

	return &IssueResult{LicenseKey: key}, nil
}

// notify 发送许可证邮件并把结果补写到事件记录
func (s *LicenseService) notify(ctx context.Context, record *model.PaymentEvent, email, key, plan string) {
	if s.notifier == nil || email == "" {
		s.logger.Info("未发送邮件：缺少收件人或未配置通知", "event_id", record.EventID)
		return
	}

	sent := true
	updates := map[string]interface{}{"email_sent": true}
	if err := s.notifier.SendLicenseKey(ctx, email, key, plan); err != nil {
		s.logger.Error("许可证邮件发送失败", "event_id", record.EventID, "error", err)
		sent = false
		updates["email_sent"] = false
		updates["email_error"] = err.Error()
	}

	if err := s.db.WithContext(ctx).Model(record).Updates(updates).Error; err != nil {
		s.logger.Error("回写邮件发送状态失败", "event_id", record.EventID, "error", err)
	}
	if sent {
		s.logger.Info("许可证邮件已发送", "event_id", record.EventID)
	}
}

// Activate 激活仲裁：未激活或同机器重复确认则绑定成功，
// 已绑定到其他机器则拒绝。写入带条件保护（machine_id 必须仍等于读取时的值），
// 两个并发的首次激活最多只有一个成功，失败方重读后按新状态裁决
func (s *LicenseService) Activate(ctx context.Context, key, machineID string) (*model.License, error) {
	db := s.db.WithContext(ctx)

	for attempt := 0; attempt < activateMaxRetries; attempt++ {
		var license model.License
		err := db.Where("key = ?", key).First(&license).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidKey
		}
		if err != nil {
			return nil, err
		}

		if license.Activated && license.MachineID != "" && license.MachineID != machineID {
			s.logger.Warn("许可证已绑定其他机器", "license_key", key)
			return nil, ErrLicenseInUse
		}

		now := time.Now()
		updates := map[string]interface{}{
			"activated":  true,
			"machine_id": machineID,
			"updated_at": now,
		}
		// 首次激活才写激活时间，重复确认保持原值
		if license.ActivatedAt == nil {
			updates["activated_at"] = now
		}

		// 条件写：machine_id 仍是读取时的值才生效，
		// 被并发写抢先则本次写零行，重新走读-判-写
		res := db.Model(&model.License{}).
			Where("key = ? AND machine_id = ?", key, license.MachineID).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		license.Activated = true
		license.MachineID = machineID
		license.UpdatedAt = now
		if license.ActivatedAt == nil {
			license.ActivatedAt = &now
		}

		s.logger.Info("许可证激活/确认成功", "license_key", key, "machine_id", machineID)

		if s.sheetSync != nil {
			go s.sheetSync.SyncLicense(&license)
		}
		return &license, nil
	}

	return nil, ErrConflict
}

// RecordUsage 记录一次激活请求，审计用，写失败只打日志
func (s *LicenseService) RecordUsage(ctx context.Context, usage *model.LicenseUsage) {
	usage.Timestamp = time.Now()
	if err := s.db.WithContext(ctx).Create(usage).Error; err != nil {
		s.logger.Error("写入使用记录失败", "license_key", usage.LicenseKey, "error", err)
	}
}

// isUniqueViolation 唯一约束冲突判断，兼容不同方言的错误文本
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
