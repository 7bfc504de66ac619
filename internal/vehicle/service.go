package vehicle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/OilChangeTracker/OilChangeTracker/internal/common/logger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/ledger"
)

// OwnerLookup 车辆归属校验需要的客户协作查询。
type OwnerLookup interface {
	Exists(ctx context.Context, id uint) (bool, error)
}

// Service 车辆档案与机油规格维护。
type Service struct {
	repo   *Repo
	owners OwnerLookup
	nhtsa  *NHTSAClient
	plates *PlateLookup
	specs  *SpecTable
	log    logger.Logger
}

func NewService(repo *Repo, owners OwnerLookup, nhtsa *NHTSAClient, plates *PlateLookup, specs *SpecTable, log logger.Logger) *Service {
	return &Service{repo: repo, owners: owners, nhtsa: nhtsa, plates: plates, specs: specs, log: log}
}

// AddInput 新增车辆。VIN 为空且有车牌时尝试车牌反查。
type AddInput struct {
	CustomerID uint
	DriverID   *uint
	Year       string
	Make       string
	Model      string
	VIN        string
	Plate      string
}

func (s *Service) Add(ctx context.Context, in AddInput) (*Vehicle, error) {
	if in.CustomerID == 0 {
		return nil, fmt.Errorf("%w: customer_id required", ledger.ErrValidation)
	}
	ok, err := s.owners.Exists(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: customer %d", ledger.ErrNotFound, in.CustomerID)
	}

	vin := strings.ToUpper(strings.TrimSpace(in.VIN))
	plate := strings.ToUpper(strings.TrimSpace(in.Plate))
	if vin == "" && plate != "" && s.plates != nil {
		vin, err = s.plates.PlateToVIN(ctx, plate, "")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
		}
	}

	v := &Vehicle{
		CustomerID: in.CustomerID,
		DriverID:   in.DriverID,
		Year:       strings.TrimSpace(in.Year),
		Make:       strings.TrimSpace(in.Make),
		Model:      strings.TrimSpace(in.Model),
		VIN:        vin,
		Plate:      plate,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*Vehicle, error) {
	v, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: vehicle %d", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID uint) ([]Vehicle, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// UpdateInput 车辆信息更新；nil 字段不动。
type UpdateInput struct {
	DriverID *uint
	Year     *string
	Make     *string
	Model    *string
	VIN      *string
	Plate    *string
}

func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*Vehicle, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.DriverID != nil {
		v.DriverID = in.DriverID
	}
	if in.Year != nil {
		v.Year = strings.TrimSpace(*in.Year)
	}
	if in.Make != nil {
		v.Make = strings.TrimSpace(*in.Make)
	}
	if in.Model != nil {
		v.Model = strings.TrimSpace(*in.Model)
	}
	if in.VIN != nil {
		v.VIN = strings.ToUpper(strings.TrimSpace(*in.VIN))
	}
	if in.Plate != nil {
		v.Plate = strings.ToUpper(strings.TrimSpace(*in.Plate))
	}
	if err := s.repo.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// RefreshSpecs 重新确定一辆车的机油规格：
//  1. 有 VIN 时先查学习缓存（vin_oil_specs），命中直接复用；
//  2. 否则走 NHTSA 解码拿发动机描述，再查本地规格表；
//  3. 命中后写回车辆并记入学习缓存。
// 查不到任何规格时返回 ErrNotFound，车辆不动。
func (s *Service) RefreshSpecs(ctx context.Context, id uint) (*Vehicle, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if v.VIN != "" {
		cached, err := s.repo.FindSpecByVIN(ctx, v.VIN)
		if err == nil {
			v.OilWeight = cached.OilWeight
			v.OilQuarts = cached.OilQuarts
			v.OilType = cached.OilType
			if err := s.repo.Save(ctx, v); err != nil {
				return nil, err
			}
			// 复用记一次
			_ = s.repo.UpsertSpec(ctx, &VinOilSpec{
				VIN:       v.VIN,
				OilWeight: cached.OilWeight,
				OilQuarts: cached.OilQuarts,
				OilType:   cached.OilType,
			})
			return v, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	engineText := ""
	if v.VIN != "" && s.nhtsa != nil {
		engineText, err = s.nhtsa.DecodeEngineText(ctx, v.VIN)
		if err != nil {
			if s.log != nil {
				s.log.Warnf("nhtsa lookup failed for vin %s: %v", v.VIN, err)
			}
			// 解码失败继续靠 year/make/model 匹配
			engineText = ""
		}
	}

	match := s.specs.Match(v.Year, v.Make, v.Model, engineText)
	if match == nil {
		return nil, fmt.Errorf("%w: no oil specification for %s %s %s", ledger.ErrNotFound, v.Year, v.Make, v.Model)
	}

	v.OilType = match.OilType
	if match.OilWeight != "" {
		v.OilWeight = match.OilWeight
	}
	if match.OilQuarts != "" {
		v.OilQuarts = match.OilQuarts
	}
	if err := s.repo.Save(ctx, v); err != nil {
		return nil, err
	}

	if v.VIN != "" {
		if err := s.repo.UpsertSpec(ctx, &VinOilSpec{
			VIN:       v.VIN,
			OilWeight: v.OilWeight,
			OilQuarts: v.OilQuarts,
			OilType:   v.OilType,
		}); err != nil && s.log != nil {
			s.log.Warnf("save learned spec for vin %s: %v", v.VIN, err)
		}
	}
	return v, nil
}
