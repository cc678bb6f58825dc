package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"menza/internal/model"
	"menza/internal/slots"
)

// CanteenConfig represents a single seeded canteen.
type CanteenConfig struct {
	ID           int64               `yaml:"id"`
	Name         string              `yaml:"name"`
	Location     string              `yaml:"location"`
	Capacity     int                 `yaml:"capacity"`
	WorkingHours []WorkingHourConfig `yaml:"working_hours,omitempty"`
}

// WorkingHourConfig is one meal window, e.g. lunch 12:00-14:00.
type WorkingHourConfig struct {
	Meal string `yaml:"meal"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CanteenDefaults apply to canteens that leave a field unset.
type CanteenDefaults struct {
	Capacity     int                 `yaml:"capacity"`
	WorkingHours []WorkingHourConfig `yaml:"working_hours"`
}

// CanteensConfig is the root configuration for canteens.yaml.
type CanteensConfig struct {
	Canteens []CanteenConfig `yaml:"canteens"`
	Defaults CanteenDefaults `yaml:"defaults"`
}

// LoadCanteensConfig loads and validates canteen seed data from a YAML file.
func LoadCanteensConfig(path string) (*CanteensConfig, error) {
	if path == "" {
		path = "configs/canteens.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read canteens config: %w", err)
	}

	var cfg CanteensConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse canteens config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate canteens config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration. Every offending canteen entry is reported, each
// error naming the entry by position and name.
func (c *CanteensConfig) Validate() error {
	if len(c.Canteens) == 0 {
		return fmt.Errorf("no canteens defined")
	}

	ids := make(map[int64]bool)
	names := make(map[string]bool)
	var errs []error

	for i, cn := range c.Canteens {
		label := fmt.Sprintf("canteen[%d]", i)
		if cn.Name != "" {
			label = fmt.Sprintf("canteen[%d] %q", i, cn.Name)
		}
		fail := func(format string, args ...any) {
			errs = append(errs, fmt.Errorf("%s: %s", label, fmt.Sprintf(format, args...)))
		}

		switch {
		case cn.ID <= 0:
			fail("id must be positive, got %d", cn.ID)
		case ids[cn.ID]:
			fail("duplicate id %d", cn.ID)
		}
		ids[cn.ID] = true

		switch {
		case cn.Name == "":
			fail("name is required")
		case names[cn.Name]:
			fail("duplicate name '%s'", cn.Name)
		}
		names[cn.Name] = true

		if cn.Capacity <= 0 {
			fail("capacity must be positive")
		}

		if len(cn.WorkingHours) == 0 {
			fail("at least one working hour is required")
		}
		for j, wh := range cn.WorkingHours {
			if err := validateWorkingHour(wh, fmt.Sprintf("%s.working_hours[%d]", label, j)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func validateWorkingHour(wh WorkingHourConfig, prefix string) error {
	if _, err := model.ParseMealType(wh.Meal); err != nil {
		return fmt.Errorf("%s.meal: %w", prefix, err)
	}

	from, err := slots.ParseTimeOfDay(wh.From)
	if err != nil {
		return fmt.Errorf("%s.from: invalid format '%s', expected HH:MM", prefix, wh.From)
	}
	to, err := slots.ParseTimeOfDay(wh.To)
	if err != nil {
		return fmt.Errorf("%s.to: invalid format '%s', expected HH:MM", prefix, wh.To)
	}

	if to <= from {
		return fmt.Errorf("%s: to must be after from", prefix)
	}
	return nil
}

func (c *CanteensConfig) applyDefaults() {
	for i := range c.Canteens {
		if c.Canteens[i].Capacity == 0 {
			c.Canteens[i].Capacity = c.Defaults.Capacity
		}
		if len(c.Canteens[i].WorkingHours) == 0 {
			c.Canteens[i].WorkingHours = c.Defaults.WorkingHours
		}
	}
}

// Model converts a seeded canteen into the domain representation.
// Call it only on a validated config.
func (cn CanteenConfig) Model() model.Canteen {
	hours := make([]model.WorkingHour, 0, len(cn.WorkingHours))
	for _, wh := range cn.WorkingHours {
		meal, _ := model.ParseMealType(wh.Meal)
		hours = append(hours, model.WorkingHour{CanteenID: cn.ID, Meal: meal, From: wh.From, To: wh.To})
	}
	return model.Canteen{
		ID:           cn.ID,
		Name:         cn.Name,
		Location:     cn.Location,
		Capacity:     cn.Capacity,
		WorkingHours: hours,
	}
}

// String returns a summary of the configuration.
func (c *CanteensConfig) String() string {
	seats := 0
	for _, cn := range c.Canteens {
		seats += cn.Capacity
	}
	return fmt.Sprintf("CanteensConfig: %d canteens, %d seats", len(c.Canteens), seats)
}
