package shark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	propOperatingMode   = "GET_Operating_Mode"
	propBatteryCapacity = "GET_Battery_Capacity"
	propPowerMode       = "GET_Power_Mode"
	propCleaningMinutes = "GET_Cleaning_Statistics_Minutes"
	propErrorCode       = "GET_Error_Code"
	propChargingStatus  = "GET_Charging_Status"
	propRSSI            = "GET_RSSI"
	propVolume          = "GET_Volume"

	propMapData         = "GET_Robot_Map_Data"
	propRobotPosition   = "GET_Robot_Position"
	propChargerPosition = "GET_Charging_Station_Position"
	propScheduleData    = "GET_Schedule_Data"

	setOperatingMode = "SET_Operating_Mode"
	setPowerMode     = "SET_Power_Mode"
	setScheduleData  = "SET_Schedule_Data"
)

// statusProperties maps property names onto RobotStatus fields.
var statusProperties = map[string]func(*RobotStatus, json.RawMessage){
	propOperatingMode:   func(s *RobotStatus, v json.RawMessage) { s.OperatingMode, _ = valueString(v) },
	propBatteryCapacity: func(s *RobotStatus, v json.RawMessage) { s.BatteryCapacity = valueInt(v) },
	propPowerMode:       func(s *RobotStatus, v json.RawMessage) { s.PowerMode, _ = valueString(v) },
	propCleaningMinutes: func(s *RobotStatus, v json.RawMessage) { s.CleaningMinutes = valueInt(v) },
	propErrorCode:       func(s *RobotStatus, v json.RawMessage) { s.ErrorCode = valueInt(v) },
	propChargingStatus:  func(s *RobotStatus, v json.RawMessage) { s.Charging = valueInt(v) > 0 },
	propRSSI:            func(s *RobotStatus, v json.RawMessage) { s.RSSI = valueInt(v) },
	propVolume:          func(s *RobotStatus, v json.RawMessage) { s.Volume = valueInt(v) },
}

// property is a name/value pair. The API wraps it as {"property": {...}} on
// some endpoints and returns it bare on others.
type property struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type propertyItem struct {
	property
	Wrapped *property `json:"property"`
}

func (p propertyItem) unwrap() property {
	if p.Wrapped != nil {
		return *p.Wrapped
	}
	return p.property
}

func decodeProperties(data []byte) ([]property, error) {
	items, err := decodeList(data, "properties")
	if err != nil {
		return nil, err
	}
	out := make([]property, 0, len(items))
	for _, raw := range items {
		var item propertyItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode property: %w", err)
		}
		out = append(out, item.unwrap())
	}
	return out, nil
}

// decodeList accepts a bare array or an object holding the array under key.
func decodeList(data []byte, key string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var list []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return list, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	inner, ok := wrapper[key]
	if !ok || string(inner) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(inner, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return list, nil
}

// valueString renders a property value as text. JSON null and absent values
// report false.
func valueString(v json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(v))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return s, true
		}
	}
	return trimmed, true
}

// valueInt parses an integer value, yielding 0 for anything else.
func valueInt(v json.RawMessage) int {
	s, ok := valueString(v)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func parseStatus(props []property) RobotStatus {
	var status RobotStatus
	for _, p := range props {
		if apply, ok := statusProperties[p.Name]; ok {
			apply(&status, p.Value)
		}
	}
	return status
}

func optionalValue(v json.RawMessage) *string {
	s, ok := valueString(v)
	if !ok {
		return nil
	}
	return &s
}
