package handler

import (
	"logpattern-license-server/internal/model"

	"github.com/gofiber/fiber/v2"
)

// HandleLicenseStatistics 处理许可证统计信息请求
func (h *Handler) HandleLicenseStatistics(c *fiber.Ctx) error {
	db := h.DB

	// 构建统计信息
	stats := &model.LicenseStatistics{
		LicensesByPlan: make(map[string]int),
	}

	// 统计许可证总数
	if err := db.Model(&model.License{}).Count(&stats.TotalLicenses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取许可证总数失败",
		})
	}

	// 统计已激活许可证数
	if err := db.Model(&model.License{}).Where("activated = ?", true).Count(&stats.ActivatedLicenses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取已激活许可证数失败",
		})
	}
	stats.UnactivatedLicenses = stats.TotalLicenses - stats.ActivatedLicenses

	// 按套餐统计许可证数量
	var planStats []struct {
		Plan  string
		Count int
	}
	if err := db.Model(&model.License{}).
		Select("plan, count(*) as count").
		Group("plan").
		Scan(&planStats).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取套餐统计失败",
		})
	}
	for _, ps := range planStats {
		stats.LicensesByPlan[ps.Plan] = ps.Count
	}

	// 统计激活请求次数
	if err := db.Model(&model.LicenseUsage{}).Where("action = ?", "activate").Count(&stats.TotalActivations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取激活次数失败",
		})
	}

	// 统计失败的激活请求次数
	if err := db.Model(&model.LicenseUsage{}).
		Where("action = ? AND result != ?", "activate", "success").
		Count(&stats.FailedActivations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取失败激活次数失败",
		})
	}

	// 统计已处理的支付事件数
	if err := db.Model(&model.PaymentEvent{}).Where("processed = ?", true).Count(&stats.ProcessedEvents).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取支付事件数失败",
		})
	}

	// 统计邮件发送失败数，供人工补发
	if err := db.Model(&model.PaymentEvent{}).Where("email_sent = ?", false).Count(&stats.EmailFailures).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取邮件失败数失败",
		})
	}

	return c.JSON(fiber.Map{
		"code":    200,
		"message": "success",
		"data":    stats,
	})
}
