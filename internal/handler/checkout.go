package handler

import (
	"context"
	"fmt"

	"logpattern-license-server/internal/payment"

	"github.com/gofiber/fiber/v2"
)

type CheckoutInput struct {
	PriceID       string `json:"priceId"`
	CustomerEmail string `json:"customer_email"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

// HandleCreateCheckout 创建 Stripe 结账会话，返回跳转地址。
// 由它产生的支付事件最终回到 webhook 入口
func (h *Handler) HandleCreateCheckout(c *fiber.Ctx) error {
	input := new(CheckoutInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "无效的输入数据",
		})
	}

	priceID := input.PriceID
	if priceID == "" {
		priceID = h.Cfg.DefaultPriceID
	}
	if priceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "priceId 不能为空",
		})
	}

	if !h.Gateway.Enabled() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Stripe 未配置",
		})
	}

	base := fmt.Sprintf("%s://%s", c.Protocol(), c.Hostname())
	successURL := input.SuccessURL
	if successURL == "" {
		successURL = base + "/success.html"
	}
	cancelURL := input.CancelURL
	if cancelURL == "" {
		cancelURL = base + "/cancel.html"
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.Cfg.ExternalTimeout)
	defer cancel()

	sess, err := h.Gateway.CreateCheckoutSession(ctx, payment.CheckoutInput{
		PriceID:       priceID,
		CustomerEmail: input.CustomerEmail,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
	})
	if err != nil {
		h.Logger.Error("创建结账会话失败", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "支付网关不可用",
		})
	}

	return c.JSON(sess)
}
