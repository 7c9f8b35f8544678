package handler

import (
	"log/slog"

	"logpattern-license-server/internal/config"
	"logpattern-license-server/internal/payment"
	"logpattern-license-server/internal/service"

	"gorm.io/gorm"
)

// Handler 持有全部依赖，启动时构建一次注入，不使用包级全局
type Handler struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Licenses *service.LicenseService
	Gateway  *payment.Gateway
	Logger   *slog.Logger
}

func New(db *gorm.DB, cfg *config.Config, licenses *service.LicenseService, gateway *payment.Gateway, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Licenses: licenses,
		Gateway:  gateway,
		Logger:   logger,
	}
}
