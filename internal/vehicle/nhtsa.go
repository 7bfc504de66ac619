package vehicle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/OilChangeTracker/OilChangeTracker/internal/common/middleware"
)

const nhtsaDecodeURL = "https://vpic.nhtsa.dot.gov/api/vehicles/DecodeVinValuesExtended/%s?format=json"

// engineFields NHTSA 解码结果里参与匹配的发动机字段，按此顺序拼接。
var engineFields = []struct {
	Key   string
	Label string
}{
	{"EngineModel", "Engine Model"},
	{"EngineManufacturer", "Engine Manufacturer"},
	{"DisplacementL", "Displacement (L)"},
	{"DisplacementCC", "Displacement (CC)"},
	{"EngineCylinders", "Cylinders"},
	{"FuelTypePrimary", "Fuel Type"},
	{"EngineConfiguration", "Engine Config"},
	{"DriveType", "Drive Type"},
	{"EngineHP", "Horsepower"},
	{"ValvesPerEngine", "Valves"},
}

// NHTSAClient 调用 vPIC 的 VIN 解码接口。外部服务不稳定，
// 所有调用都走熔断器。
type NHTSAClient struct {
	httpClient *http.Client
	breaker    *middleware.CircuitBreaker
}

func NewNHTSAClient() *NHTSAClient {
	return &NHTSAClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    middleware.NewCircuitBreaker("nhtsa", 5, 30*time.Second),
	}
}

// DecodeEngineText 解码 VIN 并把发动机相关字段拼成一段描述文本，
// 供规格表的 engine_contains 匹配。VIN 不足 11 位直接返回空串。
func (c *NHTSAClient) DecodeEngineText(ctx context.Context, vin string) (string, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if len(vin) < 11 {
		return "", nil
	}

	var text string
	err := c.breaker.Call(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(nhtsaDecodeURL, vin), nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("nhtsa request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("nhtsa status %d", resp.StatusCode)
		}

		var payload struct {
			Results []map[string]string `json:"Results"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("nhtsa decode: %w", err)
		}
		if len(payload.Results) == 0 {
			return nil
		}

		row := payload.Results[0]
		var parts []string
		for _, f := range engineFields {
			val := strings.TrimSpace(row[f.Key])
			low := strings.ToLower(val)
			if val == "" || low == "null" || low == "not applicable" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", f.Label, val))
		}
		text = strings.Join(parts, " | ")
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
