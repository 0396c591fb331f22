package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business is the tenant. One timezone per business; opening hours and slot
// granularity drive the availability grid.
type Business struct {
	ID                     uuid.UUID `gorm:"primary_key" json:"id"`
	Name                   string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Email                  string    `gorm:"size:255" json:"email"`
	Phone                  string    `gorm:"size:20" json:"phone"`
	Address                string    `gorm:"type:text" json:"address"`
	Timezone               string    `gorm:"size:50" json:"timezone"`
	OpeningHour            string    `gorm:"size:5;default:'09:00'" json:"opening_hour"`
	ClosingHour            string    `gorm:"size:5;default:'18:00'" json:"closing_hour"`
	SlotGranularityMinutes int       `gorm:"default:30" json:"slot_granularity_minutes"`
	IsActive               *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name                   string `json:"name" binding:"required"`
	Email                  string `json:"email"`
	Phone                  string `json:"phone"`
	Address                string `json:"address"`
	Timezone               string `json:"timezone"`
	OpeningHour            string `json:"opening_hour"`
	ClosingHour            string `json:"closing_hour"`
	SlotGranularityMinutes int    `json:"slot_granularity_minutes"`
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BusinessHours is the availability window used by the slot grid.
type BusinessHours struct {
	OpeningHour        string `json:"opening_hour"`
	ClosingHour        string `json:"closing_hour"`
	GranularityMinutes int    `json:"granularity_minutes"`
	Timezone           string `json:"timezone"`
}

func (h BusinessHours) Location() *time.Location {
	if h.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OpeningOn / ClosingOn anchor the window to a concrete date in the business timezone.
func (h BusinessHours) OpeningOn(date time.Time) (time.Time, error) {
	return hourOn(date, h.OpeningHour, h.Location())
}

func (h BusinessHours) ClosingOn(date time.Time) (time.Time, error) {
	return hourOn(date, h.ClosingHour, h.Location())
}

func hourOn(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid business hour %q: %w", hhmm, err)
	}
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	db := config.GetDB()

	business := Business{
		Name:                   input.Name,
		Email:                  input.Email,
		Phone:                  input.Phone,
		Address:                input.Address,
		Timezone:               input.Timezone,
		OpeningHour:            input.OpeningHour,
		ClosingHour:            input.ClosingHour,
		SlotGranularityMinutes: input.SlotGranularityMinutes,
	}
	if business.OpeningHour == "" {
		business.OpeningHour = "09:00"
	}
	if business.ClosingHour == "" {
		business.ClosingHour = "18:00"
	}
	if business.SlotGranularityMinutes <= 0 {
		business.SlotGranularityMinutes = 30
	}

	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	if businessId == "" {
		return nil, errors.New("business id is required")
	}

	// hot path for every availability request; keep a redis copy
	redisKey := "business:" + businessId
	var business Business
	exists, err := config.GetRedisObject(redisKey, &business)
	if err == nil && exists {
		return &business, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, err
	}
	_ = config.SetRedisObject(redisKey, &business, 10*time.Minute)
	return &business, nil
}

func GetBusinessHours(ctx context.Context, businessId string) (BusinessHours, error) {
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return BusinessHours{}, err
	}
	return BusinessHours{
		OpeningHour:        business.OpeningHour,
		ClosingHour:        business.ClosingHour,
		GranularityMinutes: business.SlotGranularityMinutes,
		Timezone:           business.Timezone,
	}, nil
}

func UpdateBusinessHours(ctx context.Context, businessId string, opening, closing string, granularity int) (*Business, error) {
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	updates := map[string]interface{}{}
	if opening != "" {
		updates["opening_hour"] = opening
	}
	if closing != "" {
		updates["closing_hour"] = closing
	}
	if granularity > 0 {
		updates["slot_granularity_minutes"] = granularity
	}
	if len(updates) == 0 {
		return business, nil
	}
	if err := db.WithContext(ctx).Model(&Business{}).Where("id = ?", businessId).Updates(updates).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey("business:" + businessId)
	return GetBusinessById(ctx, businessId)
}
