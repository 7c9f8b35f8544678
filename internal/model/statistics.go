package model

// LicenseStatistics 许可证统计信息
type LicenseStatistics struct {
	TotalLicenses       int64          `json:"total_licenses"`
	ActivatedLicenses   int64          `json:"activated_licenses"`
	UnactivatedLicenses int64          `json:"unactivated_licenses"`
	LicensesByPlan      map[string]int `json:"licenses_by_plan"`
	TotalActivations    int64          `json:"total_activations"`
	FailedActivations   int64          `json:"failed_activations"`
	ProcessedEvents     int64          `json:"processed_events"`
	EmailFailures       int64          `json:"email_failures"`
}

// GetSuccessRate 计算激活成功率
func (ls *LicenseStatistics) GetSuccessRate() float64 {
	if ls.TotalActivations == 0 {
		return 0
	}
	return float64(ls.TotalActivations-ls.FailedActivations) / float64(ls.TotalActivations)
}

// GetUsageByPlan 获取指定套餐的许可证数量
func (ls *LicenseStatistics) GetUsageByPlan(plan string) int {
	if count, ok := ls.LicensesByPlan[plan]; ok {
		return count
	}
	return 0
}
