package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/joshp123/sharkd/internal/history"
	"github.com/joshp123/sharkd/plugins/shark"
)

type scheduleRow struct {
	shark.Schedule
	DaysLabel string `json:"days_label"`
	TimeLabel string `json:"time_label"`
}

func sharkCmd(ctx context.Context, conn *grpc.ClientConn, args []string, jsonOutput bool) {
	out := outputMode{json: jsonOutput}
	if len(args) == 0 {
		sharkUsage()
		os.Exit(2)
	}
	svc := shark.Service(nil, nil)

	switch args[0] {
	case "devices", "list":
		devices := listDevices(ctx, conn)
		if out.json {
			out.printJSON(devices)
			return
		}
		rows := [][]string{{"NAME", "DSN", "MODEL", "ONLINE"}}
		for _, d := range devices {
			rows = append(rows, []string{d.ProductName, d.DSN, d.Model, yesNo(d.Connected)})
		}
		out.table(rows)
	case "status":
		flags := flag.NewFlagSet("shark status", flag.ExitOnError)
		device := flags.String("device", "", "Device name or DSN (default: first device)")
		_ = flags.Parse(args[1:])
		var resp struct {
			DSN      string            `json:"dsn"`
			Status   shark.RobotStatus `json:"status"`
			HasError bool              `json:"has_error"`
		}
		invoke(ctx, conn, svc, "GetStatus", deviceRequest(ctx, conn, *device), &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		st := resp.Status
		fmt.Printf("DEVICE:   %s\n", resp.DSN)
		fmt.Printf("MODE:     %s\n", st.OperatingMode)
		fmt.Printf("BATTERY:  %d%%\n", st.BatteryCapacity)
		fmt.Printf("CHARGING: %s\n", yesNo(st.Charging))
		fmt.Printf("POWER:    %s\n", st.PowerMode)
		fmt.Printf("CLEANED:  %d min\n", st.CleaningMinutes)
		fmt.Printf("RSSI:     %d dBm\n", st.RSSI)
		if resp.HasError {
			fmt.Printf("ERROR:    %d\n", st.ErrorCode)
		}
	case "start", "stop", "pause", "dock":
		flags := flag.NewFlagSet("shark "+args[0], flag.ExitOnError)
		device := flags.String("device", "", "Device name or DSN (default: first device)")
		_ = flags.Parse(args[1:])
		req := deviceRequest(ctx, conn, *device)
		req["command"] = args[0]
		var resp map[string]any
		invoke(ctx, conn, svc, "SendCommand", req, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		fmt.Printf("ok: %s -> %s\n", resp["dsn"], args[0])
	case "power":
		flags := flag.NewFlagSet("shark power", flag.ExitOnError)
		device := flags.String("device", "", "Device name or DSN (default: first device)")
		_ = flags.Parse(args[1:])
		if flags.NArg() < 1 {
			fatal("shark power", fmt.Errorf("usage: sharkctl shark power <eco|normal|max>"))
		}
		req := deviceRequest(ctx, conn, *device)
		req["mode"] = flags.Arg(0)
		var resp map[string]any
		invoke(ctx, conn, svc, "SetPowerMode", req, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		fmt.Printf("ok: %s power -> %s\n", resp["dsn"], flags.Arg(0))
	case "map":
		sharkMapCmd(ctx, conn, args[1:], out)
	case "schedules":
		sharkSchedulesCmd(ctx, conn, args[1:], out)
	case "history":
		flags := flag.NewFlagSet("shark history", flag.ExitOnError)
		device := flags.String("device", "", "Device name or DSN (default: first device)")
		limit := flags.Int("limit", 20, "Maximum samples")
		_ = flags.Parse(args[1:])
		req := deviceRequest(ctx, conn, *device)
		req["limit"] = *limit
		var resp struct {
			DSN     string           `json:"dsn"`
			Samples []history.Sample `json:"samples"`
		}
		invoke(ctx, conn, svc, "CoverageHistory", req, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		rows := [][]string{{"TIME", "CLEANED", "TOTAL", "AREA_M2"}}
		for _, s := range resp.Samples {
			rows = append(rows, []string{
				s.RecordedAt.Local().Format(time.DateTime),
				strconv.Itoa(s.CleanedCells),
				strconv.Itoa(s.TotalCells),
				strconv.FormatFloat(s.AreaSqm, 'f', 2, 64),
			})
		}
		out.table(rows)
	default:
		sharkUsage()
		os.Exit(2)
	}
}

func sharkMapCmd(ctx context.Context, conn *grpc.ClientConn, args []string, out outputMode) {
	flags := flag.NewFlagSet("shark map", flag.ExitOnError)
	device := flags.String("device", "", "Device name or DSN (default: first device)")
	output := flags.String("out", "", "Write a rendered PNG to this path")
	width := flags.Int("width", 800, "PNG width")
	height := flags.Int("height", 600, "PNG height")
	_ = flags.Parse(args)

	req := deviceRequest(ctx, conn, *device)
	if *output != "" {
		req["width"] = *width
		req["height"] = *height
	}
	var summary shark.MapSummary
	invoke(ctx, conn, shark.Service(nil, nil), "GetMap", req, &summary)

	if *output != "" {
		if err := os.WriteFile(*output, summary.PNG, 0o644); err != nil {
			fatal("shark map", err)
		}
	}
	summary.PNG = nil
	if out.json {
		out.printJSON(summary)
		return
	}
	if !summary.HasData {
		fmt.Printf("%s: no map data\n", summary.DSN)
	} else {
		fmt.Printf("DEVICE:  %s\n", summary.DSN)
		fmt.Printf("GRID:    %dx%d\n", summary.Width, summary.Height)
		fmt.Printf("CLEANED: %d / %d cells (%.2f m2)\n", summary.CleanedCells, summary.TotalCells, summary.AreaSqm)
		if summary.Robot != nil {
			fmt.Printf("ROBOT:   %d,%d @ %.0f°\n", summary.Robot.X, summary.Robot.Y, summary.Robot.Angle)
		}
		if summary.Charger != nil {
			fmt.Printf("DOCK:    %d,%d\n", summary.Charger.X, summary.Charger.Y)
		}
	}
	for _, issue := range summary.Issues {
		fmt.Printf("warning: %s %s %s\n", issue.Field, issue.Kind, issue.Detail)
	}
	if *output != "" {
		fmt.Printf("wrote %s\n", *output)
	}
}

func sharkSchedulesCmd(ctx context.Context, conn *grpc.ClientConn, args []string, out outputMode) {
	svc := shark.Service(nil, nil)
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	flags := flag.NewFlagSet("shark schedules "+sub, flag.ExitOnError)
	device := flags.String("device", "", "Device name or DSN (default: first device)")
	id := flags.String("id", "", "Schedule id (update, delete)")
	days := flags.String("days", "", "Days: daily, weekdays, weekend, or a list like mo,we,fr")
	at := flags.String("time", "08:00", "Start time HH:MM")
	mode := flags.String("mode", "normal", "Power mode")
	disabled := flags.Bool("disabled", false, "Store the schedule disabled")
	_ = flags.Parse(args)

	req := deviceRequest(ctx, conn, *device)
	switch sub {
	case "list":
		var resp struct {
			DSN       string        `json:"dsn"`
			Schedules []scheduleRow `json:"schedules"`
		}
		invoke(ctx, conn, svc, "ListSchedules", req, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		rows := [][]string{{"ID", "DAYS", "TIME", "MODE", "ENABLED"}}
		for _, s := range resp.Schedules {
			rows = append(rows, []string{s.ID, s.DaysLabel, s.TimeLabel, s.PowerMode, yesNo(s.Enabled)})
		}
		out.table(rows)
	case "add", "update":
		hour, minute, err := parseClock(*at)
		if err != nil {
			fatal("shark schedules", err)
		}
		dayList, err := parseDays(*days)
		if err != nil {
			fatal("shark schedules", err)
		}
		schedule := map[string]any{
			"days":       dayList,
			"hour":       hour,
			"minute":     minute,
			"enabled":    !*disabled,
			"power_mode": *mode,
		}
		method := "AddSchedule"
		if sub == "update" {
			if *id == "" {
				fatal("shark schedules update", fmt.Errorf("--id is required"))
			}
			schedule["id"] = *id
			method = "UpdateSchedule"
		}
		req["schedule"] = schedule
		var resp struct {
			DSN      string      `json:"dsn"`
			Schedule scheduleRow `json:"schedule"`
		}
		invoke(ctx, conn, svc, method, req, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		fmt.Printf("ok: %s %s %s (%s)\n", resp.Schedule.ID, resp.Schedule.DaysLabel, resp.Schedule.TimeLabel, resp.Schedule.PowerMode)
	case "delete":
		if *id == "" {
			fatal("shark schedules delete", fmt.Errorf("--id is required"))
		}
		req["id"] = *id
		var resp map[string]any
		invoke(ctx, conn, svc, "DeleteSchedule", req, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		fmt.Printf("ok: deleted %s\n", *id)
	default:
		sharkUsage()
		os.Exit(2)
	}
}

func listDevices(ctx context.Context, conn *grpc.ClientConn) []shark.Device {
	var resp struct {
		Devices []shark.Device `json:"devices"`
	}
	invoke(ctx, conn, shark.Service(nil, nil), "ListDevices", nil, &resp)
	return resp.Devices
}

// deviceRequest builds a request naming the device. An empty name leaves the
// choice to the server.
func deviceRequest(ctx context.Context, conn *grpc.ClientConn, name string) map[string]any {
	req := map[string]any{}
	if name == "" {
		return req
	}
	options := make(map[string]string)
	for _, d := range listDevices(ctx, conn) {
		options[d.ProductName] = d.DSN
	}
	dsn, err := resolveNamedID("device", name, options)
	if err != nil {
		fatal("resolve device", err)
	}
	req["dsn"] = dsn
	return req
}

func parseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", value)
	}
	return t.Hour(), t.Minute(), nil
}

var dayNames = map[string]int{"mo": 0, "tu": 1, "we": 2, "th": 3, "fr": 4, "sa": 5, "su": 6}

func parseDays(value string) ([]any, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "none":
		return []any{}, nil
	case "daily":
		return []any{0, 1, 2, 3, 4, 5, 6}, nil
	case "weekdays":
		return []any{0, 1, 2, 3, 4}, nil
	case "weekend":
		return []any{5, 6}, nil
	}
	var out []any
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if len(part) > 2 {
			part = part[:2]
		}
		day, ok := dayNames[part]
		if !ok {
			return nil, fmt.Errorf("unknown day %q", part)
		}
		out = append(out, day)
	}
	return out, nil
}

func sharkUsage() {
	fmt.Println("sharkctl shark <command> [--device name]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  devices")
	fmt.Println("  status")
	fmt.Println("  start | stop | pause | dock")
	fmt.Println("  power <eco|normal|max>")
	fmt.Println("  map [--out map.png] [--width N] [--height N]")
	fmt.Println("  schedules [list]")
	fmt.Println("  schedules add --days weekdays --time 09:30 [--mode eco] [--disabled]")
	fmt.Println("  schedules update --id <id> --days mo,we --time 10:00")
	fmt.Println("  schedules delete --id <id>")
	fmt.Println("  history [--limit N]")
}
