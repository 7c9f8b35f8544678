package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Notifier 把许可证密钥发送给购买者，发送失败不影响许可证签发
type Notifier interface {
	SendLicenseKey(ctx context.Context, to, licenseKey, plan string) error
}

// SendGridNotifier 通过 SendGrid 发送许可证邮件
type SendGridNotifier struct {
	client *sendgrid.Client
	from   string
}

func NewSendGridNotifier(apiKey, from string) *SendGridNotifier {
	return &SendGridNotifier{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
	}
}

func (n *SendGridNotifier) SendLicenseKey(ctx context.Context, to, licenseKey, plan string) error {
	subject := "您的 LogPattern Converter 许可证"
	plain := fmt.Sprintf("感谢您的购买。\n\n您的激活密钥: %s\n套餐: %s\n\n使用说明:\n1) 安装: pip install logpattern_converter\n2) 激活: logconv activate %s\n\n如有问题请在 GitHub 提 issue。",
		licenseKey, plan, licenseKey)
	html := fmt.Sprintf("<p>感谢您的购买。</p><p><strong>您的激活密钥:</strong> <code>%s</code></p><p>套餐: %s</p><p>使用说明:<br>1) 安装: <code>pip install logpattern_converter</code><br>2) 激活: <code>logconv activate %s</code></p>",
		licenseKey, plan, licenseKey)

	message := mail.NewSingleEmail(
		mail.NewEmail("", n.from),
		subject,
		mail.NewEmail("", to),
		plain,
		html,
	)

	resp, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("发送邮件失败: 状态码 %d", resp.StatusCode)
	}
	return nil
}
