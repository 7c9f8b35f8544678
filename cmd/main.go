package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"logpattern-license-server/internal/config"
	"logpattern-license-server/internal/database"
	"logpattern-license-server/internal/handler"
	"logpattern-license-server/internal/middleware"
	"logpattern-license-server/internal/payment"
	"logpattern-license-server/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	// 配置只在这里加载一次，之后全部走注入
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("加载配置失败:", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// 初始化数据库
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}

	// Google Sheet 镜像（可选）
	sheetSync, err := service.NewSheetSyncService(
		cfg.SheetSync.Enable,
		cfg.SheetSync.CredentialPath,
		cfg.SheetSync.SpreadsheetID,
		cfg.SheetSync.SheetName,
	)
	if err != nil {
		log.Fatal("初始化Sheet同步失败:", err)
	}

	// 邮件通知（可选）
	var notifier service.Notifier
	if cfg.NotifyEnabled() {
		notifier = service.NewSendGridNotifier(cfg.SendGridKey, cfg.EmailFrom)
	}

	gateway := payment.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	if !gateway.SignatureConfigured() {
		slogger.Warn("未配置 webhook 签名密钥，接受未签名请求体，生产环境禁止这样部署")
	}

	licenses := service.NewLicenseService(db, notifier, sheetSync, cfg.RequirePaid, slogger)
	h := handler.New(db, cfg, licenses, gateway, slogger)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// 中间件
	app.Use(logger.New())
	app.Use(cors.New())

	// 路由组
	api := app.Group("/api/v1")

	// 支付路由：webhook 和结账会话，不需要认证
	payments := api.Group("/payments")
	payments.Get("/webhook", h.HandleWebhookHealth)
	payments.Post("/webhook", h.HandleStripeWebhook)
	payments.Post("/checkout", h.HandleCreateCheckout)

	// 认证路由
	auth := api.Group("/auth")
	auth.Post("/login", h.HandleUserLogin)
	auth.Post("/validate-token", h.HandleValidateToken)

	// 用户路由
	users := api.Group("/users")
	users.Post("/register", h.HandleUserRegister)
	users.Get("/info", middleware.Auth(cfg.JWTSecret), h.HandleUserInfo)
	users.Get("/login-logs", middleware.Auth(cfg.JWTSecret), h.HandleGetLoginLogs)
	users.Get("/logs", middleware.Auth(cfg.JWTSecret), h.HandleGetUserLogs)

	// 许可证路由
	licensesGroup := api.Group("/licenses")

	// 客户端激活入口，不需要认证
	licensesGroup.Post("/activate", h.HandleLicenseActivate)

	// 管理员专用路由
	authed := middleware.Auth(cfg.JWTSecret)
	adminOnly := middleware.AdminOnly(db)
	licensesGroup.Get("/", authed, adminOnly, h.HandleGetAllLicenses)
	licensesGroup.Get("/statistics", authed, adminOnly, h.HandleLicenseStatistics)
	licensesGroup.Get("/logs", authed, adminOnly, h.HandleGetLogs)
	licensesGroup.Get("/:key", authed, adminOnly, h.HandleGetLicense)
	licensesGroup.Get("/:key/usage", authed, adminOnly, h.HandleLicenseUsage)

	log.Fatal(app.Listen(fmt.Sprintf(":%d", cfg.Port)))
}
