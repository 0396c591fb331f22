package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/shopspring/decimal"
)

// Service is a bookable offering. Price and duration are captured into the
// reservation line at booking time; later edits never touch past bookings.
type Service struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	Name            string          `gorm:"size:100;not null" json:"name" binding:"required"`
	DurationMinutes int             `gorm:"not null" json:"duration_minutes" binding:"required"`
	Price           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewService struct {
	Name            string          `json:"name" binding:"required"`
	DurationMinutes int             `json:"duration_minutes" binding:"required,gt=0"`
	Price           decimal.Decimal `json:"price"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewService) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Service](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Price.IsNegative() {
		return errors.New("price cannot be negative")
	}
	return nil
}

func CreateService(ctx context.Context, input *NewService) (*Service, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	service := Service{
		BusinessId:      businessId,
		Name:            input.Name,
		DurationMinutes: input.DurationMinutes,
		Price:           input.Price,
	}
	if err := db.WithContext(ctx).Create(&service).Error; err != nil {
		return nil, err
	}
	return &service, nil
}

func UpdateService(ctx context.Context, id int, input *NewService) (*Service, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	service, err := utils.FetchModel[Service](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(service).Updates(map[string]interface{}{
		"name":             input.Name,
		"duration_minutes": input.DurationMinutes,
		"price":            input.Price,
	}).Error
	if err != nil {
		return nil, err
	}
	return service, nil
}

func GetService(ctx context.Context, id int) (*Service, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Service](ctx, businessId, id)
}

func GetServices(ctx context.Context, name *string) ([]*Service, error) {
	db := config.GetDB()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var results []*Service
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetActiveServices resolves the requested ids for a booking. Unknown or
// inactive ids surface as a validation failure at the caller.
func GetActiveServices(ctx context.Context, businessId string, serviceIds []int) ([]*Service, error) {
	db := config.GetDB()

	unqIds := utils.UniqueSlice(serviceIds)
	var results []*Service
	if err := db.WithContext(ctx).
		Where("business_id = ? AND id IN ? AND is_active = 1", businessId, unqIds).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveService(ctx context.Context, id int, isActive bool) (*Service, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	service, err := utils.FetchModel[Service](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(service).Update("is_active", isActive).Error; err != nil {
		return nil, err
	}
	return service, nil
}
