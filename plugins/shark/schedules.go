package shark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var ErrScheduleNotFound = errors.New("schedule not found")

// scheduleJSON keeps every field raw so one oddly typed value (a numeric id,
// a quoted hour) degrades to its default instead of failing the whole list.
type scheduleJSON struct {
	ID        json.RawMessage `json:"id"`
	Days      json.RawMessage `json:"days"`
	Hour      json.RawMessage `json:"hour"`
	Minute    json.RawMessage `json:"minute"`
	Enabled   json.RawMessage `json:"enabled"`
	PowerMode json.RawMessage `json:"power_mode"`
}

// Schedules reads the latest GET_Schedule_Data datapoint.
func (c *Client) Schedules(ctx context.Context, dsn string) ([]Schedule, error) {
	data, err := c.get(ctx, devicePath(dsn, "properties", propScheduleData, "datapoints")+"?limit=1")
	if err != nil {
		return nil, err
	}
	items, err := decodeList(data, "datapoints")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []Schedule{}, nil
	}

	type datapoint struct {
		Value json.RawMessage `json:"value"`
	}
	var item struct {
		datapoint
		Wrapped *datapoint `json:"datapoint"`
	}
	if err := json.Unmarshal(items[0], &item); err != nil {
		return nil, fmt.Errorf("decode datapoint: %w", err)
	}
	dp := item.datapoint
	if item.Wrapped != nil {
		dp = *item.Wrapped
	}
	value, ok := valueString(dp.Value)
	if !ok {
		return []Schedule{}, nil
	}
	return parseSchedules(value)
}

func parseSchedules(value string) ([]Schedule, error) {
	var raw []scheduleJSON
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}
	out := make([]Schedule, 0, len(raw))
	for i, r := range raw {
		out = append(out, r.schedule(fmt.Sprintf("%d", i)))
	}
	return out, nil
}

// schedule applies the device defaults to absent or unusable fields.
func (r scheduleJSON) schedule(fallbackID string) Schedule {
	s := Schedule{
		ID:        fallbackID,
		Days:      scheduleDays(r.Days),
		Hour:      8,
		Minute:    0,
		Enabled:   true,
		PowerMode: "normal",
	}
	if id, ok := valueString(r.ID); ok {
		s.ID = id
	}
	if hour, ok := intValue(r.Hour); ok {
		s.Hour = hour
	}
	if minute, ok := intValue(r.Minute); ok {
		s.Minute = minute
	}
	if enabled, ok := boolValue(r.Enabled); ok {
		s.Enabled = enabled
	}
	if mode, ok := valueString(r.PowerMode); ok && mode != "" {
		s.PowerMode = mode
	}
	return s
}

// scheduleDays reads the day list, skipping entries that are not integers.
// Anything other than an array yields no days.
func scheduleDays(raw json.RawMessage) []int {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []int{}
	}
	days := make([]int, 0, len(items))
	for _, item := range items {
		if day, ok := intValue(item); ok {
			days = append(days, day)
		}
	}
	return days
}

// intValue coerces numbers and numeric strings, truncating fractions.
func intValue(v json.RawMessage) (int, bool) {
	text, ok := valueString(v)
	if !ok {
		return 0, false
	}
	text = strings.TrimSpace(text)
	if n, err := strconv.Atoi(text); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// boolValue accepts JSON booleans and the strings "true" and "false".
func boolValue(v json.RawMessage) (bool, bool) {
	text, ok := valueString(v)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// AddSchedule appends s under a fresh id and returns the stored schedule.
func (c *Client) AddSchedule(ctx context.Context, dsn string, s Schedule) (Schedule, error) {
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	list, err := c.Schedules(ctx, dsn)
	if err != nil {
		return Schedule{}, err
	}
	s.ID = uuid.NewString()
	if s.PowerMode == "" {
		s.PowerMode = "normal"
	}
	list = append(list, s)
	if err := c.pushSchedules(ctx, dsn, list); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// UpdateSchedule replaces the schedule with the same id.
func (c *Client) UpdateSchedule(ctx context.Context, dsn string, s Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	list, err := c.Schedules(ctx, dsn)
	if err != nil {
		return err
	}
	found := false
	for i := range list {
		if list[i].ID == s.ID {
			list[i] = s
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, s.ID)
	}
	return c.pushSchedules(ctx, dsn, list)
}

// DeleteSchedule removes the schedule with the given id.
func (c *Client) DeleteSchedule(ctx context.Context, dsn, id string) error {
	list, err := c.Schedules(ctx, dsn)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, s := range list {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(list) {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return c.pushSchedules(ctx, dsn, kept)
}

func (c *Client) pushSchedules(ctx context.Context, dsn string, list []Schedule) error {
	for i := range list {
		if list[i].Days == nil {
			list[i].Days = []int{}
		}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.postDatapoint(ctx, dsn, setScheduleData, string(data))
}
