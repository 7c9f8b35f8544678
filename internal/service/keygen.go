package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// KeyPrefix 产品标识前缀，方便用户和客服识别
const KeyPrefix = "LP-"

// GenerateLicenseKey 生成 256 位熵的许可证密钥，格式 LP-<64位十六进制>
func GenerateLicenseKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("读取随机源失败: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(raw), nil
}
