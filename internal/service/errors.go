package service

import "errors"

// 错误种类由 service 层返回，handler 层统一翻译成 HTTP 状态码
var (
	// ErrInvalidKey 许可证密钥不存在
	ErrInvalidKey = errors.New("许可证密钥无效")
	// ErrLicenseInUse 许可证已绑定到其他机器
	ErrLicenseInUse = errors.New("许可证已在其他机器上使用")
	// ErrNotPaid 支付事件状态不是已支付（严格模式下拒绝）
	ErrNotPaid = errors.New("支付状态不是已支付")
	// ErrKeyCollision 新生成的密钥与已有记录冲突，该事件需要人工介入
	ErrKeyCollision = errors.New("许可证密钥生成冲突")
	// ErrConflict 并发写入冲突且重试耗尽，调用方可重试
	ErrConflict = errors.New("并发冲突，请重试")
)
