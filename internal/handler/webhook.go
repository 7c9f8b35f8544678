package handler

import (
	"context"
	"errors"

	"logpattern-license-server/internal/payment"
	"logpattern-license-server/internal/service"

	"github.com/gofiber/fiber/v2"
)

// HandleWebhookHealth 网关侧的健康检查
func (h *Handler) HandleWebhookHealth(c *fiber.Ctx) error {
	return c.SendString("stripeWebhook ready")
}

// HandleStripeWebhook 支付事件入口。网关按至少一次语义投递，
// 重复投递返回 200 和首次处理的结果
func (h *Handler) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	sigHeader := c.Get("Stripe-Signature")

	event, err := h.Gateway.VerifyWebhook(payload, sigHeader)
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			h.Logger.Warn("webhook 签名验证失败", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "webhook 签名验证失败",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "无法解析事件",
		})
	}

	// 无关类型直接确认，必须回 200 防止重投风暴
	if !payment.IsRelevantEventType(string(event.Type)) {
		return c.JSON(fiber.Map{"received": true})
	}

	completed := payment.ParseCompletedEvent(event)

	ctx, cancel := context.WithTimeout(c.UserContext(), h.Cfg.ExternalTimeout)
	defer cancel()

	result, err := h.Licenses.IssueFromPayment(ctx, completed)
	switch {
	case errors.Is(err, service.ErrNotPaid):
		// 终态裁决，确认收到但不签发，避免网关无限重投
		return c.JSON(fiber.Map{
			"received": true,
			"note":     "payment not completed",
		})
	case err != nil:
		// 密钥冲突、存储故障等都靠网关自动重投恢复
		h.Logger.Error("处理支付事件失败", "event_id", completed.EventID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "处理支付事件失败",
		})
	}

	if result.AlreadyProcessed {
		return c.JSON(fiber.Map{
			"processed": true,
			"note":      "already processed",
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"licenseKey": result.LicenseKey,
	})
}
