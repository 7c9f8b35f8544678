package handler

import (
	"context"
	"errors"

	"logpattern-license-server/internal/model"
	"logpattern-license-server/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ActivateInput 激活请求。旧版客户端用过 licenseKey/machine_id 的写法，
// 这里显式列出两种拼写，snake_case 优先
type ActivateInput struct {
	LicenseKey    string `json:"license_key"`
	LicenseKeyAlt string `json:"licenseKey"`
	MachineID     string `json:"machineId"`
	MachineIDAlt  string `json:"machine_id"`
}

func (in *ActivateInput) Key() string {
	if in.LicenseKey != "" {
		return in.LicenseKey
	}
	return in.LicenseKeyAlt
}

func (in *ActivateInput) Machine() string {
	if in.MachineID != "" {
		return in.MachineID
	}
	return in.MachineIDAlt
}

// HandleLicenseActivate 客户端机器的激活入口
func (h *Handler) HandleLicenseActivate(c *fiber.Ctx) error {
	input := new(ActivateInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "无效的输入数据",
		})
	}

	key, machineID := input.Key(), input.Machine()
	if key == "" || machineID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "缺少许可证密钥(license_key)或机器ID(machineId)",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.Cfg.ExternalTimeout)
	defer cancel()

	license, err := h.Licenses.Activate(ctx, key, machineID)

	// 每次激活请求都留审计记录
	usage := &model.LicenseUsage{
		LicenseKey: key,
		MachineID:  machineID,
		Action:     "activate",
		Result:     activateResult(err),
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	h.Licenses.RecordUsage(ctx, usage)

	switch {
	case errors.Is(err, service.ErrInvalidKey):
		// 不泄露密钥是否曾经有效，只说找不到
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "密钥无效：未找到该许可证密钥",
		})
	case errors.Is(err, service.ErrLicenseInUse):
		// 不透露对方机器的任何信息
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "许可证使用中：该密钥已在其他机器上激活，请联系客服",
		})
	case err != nil:
		h.Logger.Error("激活处理失败", "license_key", key, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "服务器内部错误，请稍后重试",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "许可证激活成功",
		"licenseData": fiber.Map{
			"key":     license.Key,
			"machine": license.MachineID,
			"user":    license.UserID,
		},
	})
}

func activateResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, service.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, service.ErrLicenseInUse):
		return "in_use"
	default:
		return "error"
	}
}

// HandleGetAllLicenses 管理员获取所有许可证数据
func (h *Handler) HandleGetAllLicenses(c *fiber.Ctx) error {
	var licenses []model.License
	result := h.DB.Find(&licenses)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取许可证数据失败",
		})
	}

	return c.JSON(fiber.Map{
		"licenses": licenses,
	})
}

// HandleGetLicense 获取单个许可证详情
func (h *Handler) HandleGetLicense(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "许可证密钥不能为空",
		})
	}

	var license model.License
	result := h.DB.Where("key = ?", key).First(&license)
	if result.Error != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "许可证不存在",
		})
	}

	return c.JSON(license)
}

// HandleLicenseUsage 查询license激活记录
func (h *Handler) HandleLicenseUsage(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "许可证密钥不能为空",
		})
	}

	var usages []model.LicenseUsage
	result := h.DB.Where("license_key = ?", key).Order("timestamp desc").Limit(20).Find(&usages)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "查询使用记录失败",
		})
	}

	return c.JSON(fiber.Map{
		"usages": usages,
	})
}
