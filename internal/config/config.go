package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config 进程启动时构建一次，之后通过注入传给各个 handler 和 service，
// 不使用包级全局变量
type Config struct {
	Port   int    `envconfig:"PORT" default:"8080"`
	DBPath string `envconfig:"DB_PATH" default:"data/license.db"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	SendGridKey         string `envconfig:"SENDGRID_API_KEY"`
	EmailFrom           string `envconfig:"EMAIL_FROM"`
	DefaultPriceID      string `envconfig:"PRICE_ID"`

	// RequirePaid 为 true 时，非 paid 状态的支付事件直接拒绝，不生成许可证
	RequirePaid bool `envconfig:"REQUIRE_PAID" default:"true"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"your-secret-key"`

	// 外部调用（Stripe、SendGrid、Sheets）的超时时间
	ExternalTimeout time.Duration `envconfig:"EXTERNAL_TIMEOUT" default:"15s"`

	SheetSync SheetSyncConfig `envconfig:"SHEET_SYNC"`
}

type SheetSyncConfig struct {
	Enable         bool   `envconfig:"ENABLE" default:"false"`
	CredentialPath string `envconfig:"CREDENTIAL_PATH"`
	SpreadsheetID  string `envconfig:"SPREADSHEET_ID"`
	SheetName      string `envconfig:"SHEET_NAME" default:"Licenses"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LP", &cfg); err != nil {
		return nil, fmt.Errorf("加载环境变量配置失败: %w", err)
	}

	// 兼容旧的环境变量名（不带 LP 前缀的旧部署）
	applyLegacy(&cfg.StripeSecretKey, "STRIPE_SECRET_KEY", "STRIPE_SECRET", "STRIPE_KEY")
	applyLegacy(&cfg.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET", "STRIPE_WEBHOOK")
	applyLegacy(&cfg.SendGridKey, "SENDGRID_API_KEY", "SENDGRID_KEY")
	applyLegacy(&cfg.EmailFrom, "EMAIL_FROM", "SENDGRID_FROM")
	applyLegacy(&cfg.DefaultPriceID, "PRICE_ID")

	return &cfg, nil
}

// applyLegacy 目标值为空时依次尝试旧变量名
func applyLegacy(dst *string, names ...string) {
	if *dst != "" {
		return
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

// NotifyEnabled 邮件通知是否配置完整
func (c *Config) NotifyEnabled() bool {
	return c.SendGridKey != "" && c.EmailFrom != ""
}
