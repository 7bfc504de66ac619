package vehicle

import (
	"context"
	"fmt"
	"strings"

	"github.com/OilChangeTracker/OilChangeTracker/internal/common/config"
)

// ErrPlateLookup 车牌查 VIN 失败（provider 配置问题或外部服务报错）。
type ErrPlateLookup struct {
	Reason string
}

func (e *ErrPlateLookup) Error() string {
	return fmt.Sprintf("plate lookup error: %s", e.Reason)
}

// demoPlates provider 为 none 时可识别的演示车牌。
var demoPlates = map[string]string{
	"TEST123": "1FAFP404XWF123456",
	"DEMO1":   "1FAFP404XWF123456",
	"SAMPLE":  "1FAFP404XWF123456",
}

// PlateLookup 按车牌反查 VIN。目前真实 provider 尚未接入，
// none 模式下只认几个演示车牌，方便前台培训。
type PlateLookup struct {
	cfg config.PlateLookupConfig
}

func NewPlateLookup(cfg config.PlateLookupConfig) *PlateLookup {
	return &PlateLookup{cfg: cfg}
}

// PlateToVIN 查到返回 VIN，查不到返回空串（不视为错误）。
func (p *PlateLookup) PlateToVIN(ctx context.Context, plate, region string) (string, error) {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	if plate == "" {
		return "", nil
	}

	provider := p.cfg.Provider
	if provider == "" || provider == "none" || p.cfg.Key == "" {
		return demoPlates[plate], nil
	}

	switch provider {
	case "vinapi":
		// TODO: 接入 RapidAPI 的车牌→VIN 服务后补上真实实现
		return "", &ErrPlateLookup{Reason: "vinapi provider not configured"}
	default:
		return "", &ErrPlateLookup{Reason: fmt.Sprintf("unknown provider: %s", provider)}
	}
}
