package model

import (
	"fmt"
	"strings"
	"time"
)

// MealType is the meal category served during a working-hour window.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

// ParseMealType accepts a meal label case-insensitively.
func ParseMealType(s string) (MealType, error) {
	switch m := MealType(strings.ToLower(strings.TrimSpace(s))); m {
	case MealBreakfast, MealLunch, MealDinner:
		return m, nil
	default:
		return "", fmt.Errorf("unknown meal type %q", s)
	}
}

type Canteen struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Location     string        `json:"location"`
	Capacity     int           `json:"capacity"`
	WorkingHours []WorkingHour `json:"working_hours"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type WorkingHour struct {
	ID        int64    `json:"id"`
	CanteenID int64    `json:"canteen_id"`
	Meal      MealType `json:"meal"`
	From      string   `json:"from"` // "12:00"
	To        string   `json:"to"`   // "14:00"
}
