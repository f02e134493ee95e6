package rpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/structpb"
)

func echoService() Service {
	return Service{
		Package: "sharkd.test.v1",
		Name:    "Echo",
		Methods: []Method{
			{Name: "Say", Handler: func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				text, err := RequireString(req, "text")
				if err != nil {
					return nil, err
				}
				return Encode(map[string]any{"text": text, "times": Int(req, "times", 1)})
			}},
		},
	}
}

func dial(t *testing.T, register func(*grpc.Server)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	register(server)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRegisterAndInvoke(t *testing.T) {
	svc := echoService()
	conn := dial(t, func(s *grpc.Server) {
		if err := Register(s, svc); err != nil {
			t.Fatalf("Register: %v", err)
		}
	})

	req, _ := structpb.NewStruct(map[string]any{"text": "hello", "times": 3})
	resp, err := Invoke(context.Background(), conn, svc, "Say", req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if String(resp, "text") != "hello" || Int(resp, "times", 0) != 3 {
		t.Fatalf("unexpected response: %v", resp)
	}

	_, err = Invoke(context.Background(), conn, svc, "Say", nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRegisterPublishesDescriptor(t *testing.T) {
	svc := echoService()
	// Registering twice must be idempotent.
	for i := 0; i < 2; i++ {
		if err := Register(grpc.NewServer(), svc); err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
	}
	desc, err := protoregistry.GlobalFiles.FindDescriptorByName(protoreflect.FullName(svc.FullName()))
	if err != nil {
		t.Fatalf("descriptor not found: %v", err)
	}
	sd, ok := desc.(protoreflect.ServiceDescriptor)
	if !ok {
		t.Fatalf("expected service descriptor, got %T", desc)
	}
	method := sd.Methods().ByName("Say")
	if method == nil || method.Input().FullName() != "google.protobuf.Struct" {
		t.Fatalf("unexpected method descriptor: %v", method)
	}
}

func TestDecodeIntoStruct(t *testing.T) {
	req, _ := structpb.NewStruct(map[string]any{"dsn": "AC000W1", "hour": 7, "days": []any{1, 2}})
	var out struct {
		DSN  string `json:"dsn"`
		Hour int    `json:"hour"`
		Days []int  `json:"days"`
	}
	if err := Decode(req, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.DSN != "AC000W1" || out.Hour != 7 || len(out.Days) != 2 {
		t.Fatalf("unexpected decode: %+v", out)
	}
	if Int(req, "dsn", -1) != -1 {
		t.Fatalf("string field should not parse as int")
	}
}
