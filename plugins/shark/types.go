package shark

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/sharkd/internal/cleanmap"
)

const defaultProductName = "Shark Robot"

// Device is one robot registered to the account.
type Device struct {
	DSN         string `json:"dsn"`
	ProductName string `json:"product_name"`
	Model       string `json:"model"`
	Connected   bool   `json:"connected"`
}

// RobotStatus is the decoded property set of a robot.
type RobotStatus struct {
	OperatingMode   string `json:"operating_mode"`
	BatteryCapacity int    `json:"battery_capacity"`
	PowerMode       string `json:"power_mode"`
	CleaningMinutes int    `json:"cleaning_minutes"`
	ErrorCode       int    `json:"error_code"`
	Charging        bool   `json:"charging"`
	RSSI            int    `json:"rssi"`
	Volume          int    `json:"volume"`
}

func (s RobotStatus) HasError() bool {
	return s.ErrorCode > 0
}

// Schedule is one cleaning slot. Days are 0=Monday through 6=Sunday.
type Schedule struct {
	ID        string `json:"id"`
	Days      []int  `json:"days"`
	Hour      int    `json:"hour"`
	Minute    int    `json:"minute"`
	Enabled   bool   `json:"enabled"`
	PowerMode string `json:"power_mode"`
}

var dayLabels = [...]string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// DaysLabel summarises the selected days.
func (s Schedule) DaysLabel() string {
	switch {
	case len(s.Days) == 0:
		return "none"
	case len(s.Days) == 7:
		return "daily"
	case sameDays(s.Days, 0, 1, 2, 3, 4):
		return "weekdays"
	case sameDays(s.Days, 5, 6):
		return "weekend"
	}
	parts := make([]string, 0, len(s.Days))
	for _, d := range s.Days {
		if d < 0 || d >= len(dayLabels) {
			parts = append(parts, "?")
			continue
		}
		parts = append(parts, dayLabels[d])
	}
	return strings.Join(parts, ", ")
}

// TimeLabel formats the start time as HH:MM.
func (s Schedule) TimeLabel() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// Validate checks the ranges a robot accepts.
func (s Schedule) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("hour must be 0-23, got %d", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("minute must be 0-59, got %d", s.Minute)
	}
	for _, d := range s.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("day must be 0-6, got %d", d)
		}
	}
	return nil
}

func sameDays(days []int, want ...int) bool {
	if len(days) != len(want) {
		return false
	}
	for i := range days {
		if days[i] != want[i] {
			return false
		}
	}
	return true
}

// MapProperties is the raw map input fetched from the cloud.
type MapProperties struct {
	Raw       cleanmap.RawMap `json:"raw"`
	FetchedAt time.Time       `json:"fetched_at"`
}
