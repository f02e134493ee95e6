package shark

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/sharkd/internal/cleanmap"
	"github.com/joshp123/sharkd/internal/history"
	"github.com/joshp123/sharkd/internal/rate"
	"github.com/joshp123/sharkd/internal/rpc"
	"github.com/joshp123/sharkd/internal/session"
)

const (
	servicePackage = "sharkd.plugins.shark.v1"
	serviceName    = "SharkService"
)

// IssueJSON is one decode degradation.
type IssueJSON struct {
	Kind   string `json:"kind"`
	Field  string `json:"field"`
	Detail string `json:"detail,omitempty"`
}

// MapSummary describes a decoded snapshot, optionally with a rendered PNG.
type MapSummary struct {
	MapEvent
	Cached bool        `json:"cached"`
	Issues []IssueJSON `json:"issues,omitempty"`
	PNG    []byte      `json:"png,omitempty"`
}

type scheduleView struct {
	Schedule
	DaysLabel string `json:"days_label"`
	TimeLabel string `json:"time_label"`
}

type service struct {
	client *Client
	maps   *MapService
}

// Service describes the SharkService RPCs backed by client and maps.
func Service(client *Client, maps *MapService) rpc.Service {
	s := &service{client: client, maps: maps}
	return rpc.Service{
		Package: servicePackage,
		Name:    serviceName,
		Methods: []rpc.Method{
			{Name: "ListDevices", Handler: s.listDevices},
			{Name: "GetStatus", Handler: s.getStatus},
			{Name: "SendCommand", Handler: s.sendCommand},
			{Name: "SetPowerMode", Handler: s.setPowerMode},
			{Name: "GetMap", Handler: s.getMap},
			{Name: "ListSchedules", Handler: s.listSchedules},
			{Name: "AddSchedule", Handler: s.addSchedule},
			{Name: "UpdateSchedule", Handler: s.updateSchedule},
			{Name: "DeleteSchedule", Handler: s.deleteSchedule},
			{Name: "CoverageHistory", Handler: s.coverageHistory},
		},
	}
}

func RegisterSharkService(server *grpc.Server, client *Client, maps *MapService) error {
	return rpc.Register(server, Service(client, maps))
}

func (s *service) listDevices(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	devices, err := s.client.Devices(ctx)
	if err != nil {
		return nil, mapClientError("list devices", err)
	}
	return rpc.Encode(map[string]any{"devices": devices})
}

func (s *service) getStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	st, err := s.client.Status(ctx, dsn)
	if err != nil {
		return nil, mapClientError("get status", err)
	}
	return rpc.Encode(map[string]any{"dsn": dsn, "status": st, "has_error": st.HasError()})
}

func (s *service) sendCommand(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	command, err := rpc.RequireString(req, "command")
	if err != nil {
		return nil, err
	}
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.client.SendCommand(ctx, dsn, command); err != nil {
		return nil, mapClientError("send command", err)
	}
	return rpc.Encode(map[string]any{"dsn": dsn, "command": command})
}

func (s *service) setPowerMode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mode, err := rpc.RequireString(req, "mode")
	if err != nil {
		return nil, err
	}
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.client.SetPowerMode(ctx, dsn, mode); err != nil {
		return nil, mapClientError("set power mode", err)
	}
	return rpc.Encode(map[string]any{"dsn": dsn, "mode": mode})
}

func (s *service) getMap(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	snap, err := s.maps.MapSnapshot(ctx, dsn)
	if err != nil {
		return nil, mapClientError("get map", err)
	}
	summary := summarize(snap)

	width := rpc.Int(req, "width", 0)
	height := rpc.Int(req, "height", 0)
	if width > 0 && height > 0 {
		if width > maxRenderSize || height > maxRenderSize {
			return nil, status.Errorf(codes.InvalidArgument, "width and height must be at most %d", maxRenderSize)
		}
		vp := cleanmap.DefaultViewport()
		vp.FitGrid(snap.Model.Grid(), width, height)
		png, err := cleanmap.EncodePNG(cleanmap.RenderImage(snap.Model, vp, width, height))
		if err != nil {
			return nil, status.Errorf(codes.Internal, "render map: %v", err)
		}
		summary.PNG = png
	}
	return rpc.Encode(summary)
}

func (s *service) listSchedules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	list, err := s.client.Schedules(ctx, dsn)
	if err != nil {
		return nil, mapClientError("list schedules", err)
	}
	views := make([]scheduleView, 0, len(list))
	for _, sch := range list {
		views = append(views, newScheduleView(sch))
	}
	return rpc.Encode(map[string]any{"dsn": dsn, "schedules": views})
}

func (s *service) addSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sch, err := decodeSchedule(req)
	if err != nil {
		return nil, err
	}
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	stored, err := s.client.AddSchedule(ctx, dsn, sch)
	if err != nil {
		return nil, mapClientError("add schedule", err)
	}
	return rpc.Encode(map[string]any{"dsn": dsn, "schedule": newScheduleView(stored)})
}

func (s *service) updateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sch, err := decodeSchedule(req)
	if err != nil {
		return nil, err
	}
	if sch.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "schedule.id is required")
	}
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.client.UpdateSchedule(ctx, dsn, sch); err != nil {
		return nil, mapClientError("update schedule", err)
	}
	return rpc.Encode(map[string]any{"dsn": dsn, "schedule": newScheduleView(sch)})
}

func (s *service) deleteSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := rpc.RequireString(req, "id")
	if err != nil {
		return nil, err
	}
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.client.DeleteSchedule(ctx, dsn, id); err != nil {
		return nil, mapClientError("delete schedule", err)
	}
	return rpc.Encode(map[string]any{"dsn": dsn, "id": id})
}

func (s *service) coverageHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dsn, err := s.resolveDSN(ctx, req)
	if err != nil {
		return nil, err
	}
	samples, err := s.maps.CoverageHistory(ctx, dsn, rpc.Int(req, "limit", 50))
	if err != nil {
		return nil, mapClientError("coverage history", err)
	}
	if samples == nil {
		samples = []history.Sample{}
	}
	return rpc.Encode(map[string]any{"dsn": dsn, "samples": samples})
}

func (s *service) ready() error {
	if s.client == nil || s.maps == nil {
		return status.Error(codes.FailedPrecondition, "shark client not configured")
	}
	return nil
}

// resolveDSN returns the request's dsn, or the first device when omitted.
func (s *service) resolveDSN(ctx context.Context, req *structpb.Struct) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	dsn, err := firstDSN(ctx, s.client, rpc.String(req, "dsn"))
	if err != nil {
		return "", mapClientError("resolve device", err)
	}
	return dsn, nil
}

var errNoDevices = errors.New("no devices available")

func firstDSN(ctx context.Context, client *Client, dsn string) (string, error) {
	if dsn != "" {
		return dsn, nil
	}
	devices, err := client.Devices(ctx)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", errNoDevices
	}
	return devices[0].DSN, nil
}

func decodeSchedule(req *structpb.Struct) (Schedule, error) {
	var body struct {
		Schedule *scheduleJSON `json:"schedule"`
	}
	if err := rpc.Decode(req, &body); err != nil {
		return Schedule{}, err
	}
	if body.Schedule == nil {
		return Schedule{}, status.Error(codes.InvalidArgument, "schedule is required")
	}
	sch := body.Schedule.schedule("")
	if err := sch.Validate(); err != nil {
		return Schedule{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return sch, nil
}

func newScheduleView(s Schedule) scheduleView {
	return scheduleView{Schedule: s, DaysLabel: s.DaysLabel(), TimeLabel: s.TimeLabel()}
}

func summarize(snap Snapshot) MapSummary {
	summary := MapSummary{MapEvent: newMapEvent(snap), Cached: snap.Cached}
	for _, issue := range snap.Diagnostics.Issues {
		summary.Issues = append(summary.Issues, IssueJSON{
			Kind:   string(issue.Kind),
			Field:  issue.Field,
			Detail: issue.Detail,
		})
	}
	return summary
}

func mapClientError(action string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var httpErr HTTPStatusError
	var rateErr rate.RateLimitError
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return status.Errorf(codes.InvalidArgument, "%s: %v", action, err)
	case errors.Is(err, ErrScheduleNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", action, err)
	case errors.Is(err, session.ErrNotLoggedIn), errors.Is(err, ErrHistoryDisabled), errors.Is(err, errNoDevices):
		return status.Errorf(codes.FailedPrecondition, "%s: %v", action, err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", action, err)
	case errors.As(err, &rateErr):
		return status.Errorf(codes.ResourceExhausted, "%s: %v", action, err)
	case errors.As(err, &httpErr):
		switch {
		case httpErr.Status == http.StatusUnauthorized:
			return status.Errorf(codes.Unauthenticated, "%s: %v", action, err)
		case httpErr.Status == http.StatusNotFound:
			return status.Errorf(codes.NotFound, "%s: %v", action, err)
		case httpErr.Status >= 500:
			return status.Errorf(codes.Unavailable, "%s: %v", action, err)
		}
	}
	return status.Errorf(codes.Internal, "%s: %v", action, err)
}
