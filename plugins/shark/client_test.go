package shark

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
)

func TestDevicesShapes(t *testing.T) {
	f, server := newFakeAyla(t)
	client, _ := newTestClient(t, server.URL)

	devices, err := client.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	want := Device{DSN: "AC000W1", ProductName: "Shark AI", Model: "RV2502AE", Connected: true}
	if devices[0] != want {
		t.Fatalf("unexpected device: %+v", devices[0])
	}

	f.mu.Lock()
	f.devicesBody = `{"devices":[{"serial_number":"SN9","model":"RV1001","connected":false},{"dsn":"AC2","name":"Upstairs","connected":true}]}`
	f.mu.Unlock()

	devices, err = client.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices (wrapped): %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].DSN != "SN9" || devices[0].ProductName != defaultProductName || devices[0].Model != "RV1001" || devices[0].Connected {
		t.Fatalf("unexpected fallback device: %+v", devices[0])
	}
	if devices[1].ProductName != "Upstairs" || !devices[1].Connected {
		t.Fatalf("unexpected named device: %+v", devices[1])
	}
}

func TestStatusPropertyTable(t *testing.T) {
	f, server := newFakeAyla(t)
	client, _ := newTestClient(t, server.URL)

	f.setProperty("AC1", propOperatingMode, "start")
	f.setProperty("AC1", propBatteryCapacity, 87)
	f.setProperty("AC1", propPowerMode, "max")
	f.setProperty("AC1", propCleaningMinutes, "42")
	f.setProperty("AC1", propErrorCode, "not-a-number")
	f.setProperty("AC1", propChargingStatus, 1)
	f.setProperty("AC1", propRSSI, -61)
	f.setProperty("AC1", propVolume, nil)
	f.setProperty("AC1", "GET_Something_Else", "ignored")

	status, err := client.Status(context.Background(), "AC1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	want := RobotStatus{
		OperatingMode:   "start",
		BatteryCapacity: 87,
		PowerMode:       "max",
		CleaningMinutes: 42,
		ErrorCode:       0,
		Charging:        true,
		RSSI:            -61,
		Volume:          0,
	}
	if status != want {
		t.Fatalf("unexpected status:\n got %+v\nwant %+v", status, want)
	}
	if status.HasError() {
		t.Fatalf("expected no error")
	}
}

func TestSendCommandMapping(t *testing.T) {
	f, server := newFakeAyla(t)
	client, _ := newTestClient(t, server.URL)

	for _, cmd := range Commands() {
		if err := client.SendCommand(context.Background(), "AC1", cmd); err != nil {
			t.Fatalf("SendCommand %s: %v", cmd, err)
		}
	}
	err := client.SendCommand(context.Background(), "AC1", "selfdestruct")
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}

	posts := f.posted()
	want := []string{"start", "stop", "pause", "return"}
	if len(posts) != len(want) {
		t.Fatalf("expected %d posts, got %d", len(want), len(posts))
	}
	for i, p := range posts {
		if p.Property != setOperatingMode || p.Value != want[i] || p.DSN != "AC1" {
			t.Fatalf("post %d: unexpected %+v", i, p)
		}
	}
}

func TestSetPowerMode(t *testing.T) {
	f, server := newFakeAyla(t)
	client, _ := newTestClient(t, server.URL)

	if err := client.SetPowerMode(context.Background(), "AC1", "eco"); err != nil {
		t.Fatalf("SetPowerMode: %v", err)
	}
	if err := client.SetPowerMode(context.Background(), "AC1", " "); err == nil {
		t.Fatalf("expected error for empty mode")
	}
	posts := f.posted()
	if len(posts) != 1 || posts[0].Property != setPowerMode || posts[0].Value != "eco" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
}

func TestFetchMapPropertiesOptionalFields(t *testing.T) {
	f, server := newFakeAyla(t)
	client, _ := newTestClient(t, server.URL)

	f.setProperty("AC1", propMapData, gridPayload(2, 1, []byte{1, 2}))
	f.setProperty("AC1", propRobotPosition, nil)

	props, err := client.FetchMapProperties(context.Background(), "AC1")
	if err != nil {
		t.Fatalf("FetchMapProperties: %v", err)
	}
	if props.Raw.Grid == nil {
		t.Fatalf("expected grid payload")
	}
	if props.Raw.Robot != nil || props.Raw.Charger != nil {
		t.Fatalf("expected absent poses, got %+v", props.Raw)
	}
	if props.FetchedAt.IsZero() {
		t.Fatalf("expected fetch time")
	}
	if f.mapCalls() != 1 {
		t.Fatalf("expected a names[] request, got %d", f.mapCalls())
	}
}

func TestUnauthorizedTriggersRefresh(t *testing.T) {
	f, server := newFakeAyla(t)
	client, tokens := newTestClient(t, server.URL)
	f.mu.Lock()
	f.unauthorized = true
	f.mu.Unlock()

	_, err := client.Devices(context.Background())
	var httpErr HTTPStatusError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 HTTPStatusError, got %v", err)
	}
	if atomic.LoadInt32(&tokens.refreshes) != 1 {
		t.Fatalf("expected refresh to be triggered")
	}
}

func TestHTTPStatusError(t *testing.T) {
	_, server := newFakeAyla(t)
	client, _ := newTestClient(t, server.URL)

	_, err := client.get(context.Background(), "/v1/nowhere")
	var httpErr HTTPStatusError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{BaseURL: "http://x"}, nil); err == nil {
		t.Fatalf("expected error without token source")
	}
	if _, err := NewClient(ClientConfig{}, &staticTokens{}); err == nil {
		t.Fatalf("expected error without base url")
	}
}
