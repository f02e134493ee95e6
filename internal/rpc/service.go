// Package rpc builds unary gRPC services whose requests and responses are
// google.protobuf.Struct. Descriptors are registered at runtime so server
// reflection and grpcurl can discover them.
package rpc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const structType = ".google.protobuf.Struct"

// Handler serves one method.
type Handler func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// Method is one named RPC of a service.
type Method struct {
	Name    string
	Handler Handler
}

// Service is a set of Struct-typed unary methods under a proto package.
type Service struct {
	Package string
	Name    string
	Methods []Method
}

// FullName is the fully-qualified service name, e.g. sharkd.registry.v1.Registry.
func (s Service) FullName() string {
	return s.Package + "." + s.Name
}

// FileName is the synthetic proto file path the service is registered under.
func (s Service) FileName() string {
	return strings.ReplaceAll(s.Package, ".", "/") + "/" + strings.ToLower(s.Name) + ".proto"
}

// MethodPath is the HTTP/2 path for a method.
func (s Service) MethodPath(method string) string {
	return "/" + s.FullName() + "/" + method
}

var registerMu sync.Mutex

// Register publishes the service descriptor and attaches handlers to server.
func Register(server *grpc.Server, svc Service) error {
	if err := registerDescriptor(svc); err != nil {
		return err
	}

	desc := &grpc.ServiceDesc{
		ServiceName: svc.FullName(),
		HandlerType: (*any)(nil),
		Metadata:    svc.FileName(),
	}
	for _, m := range svc.Methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.Name,
			Handler:    unaryHandler(svc.MethodPath(m.Name), m.Handler),
		})
	}
	server.RegisterService(desc, svc)
	return nil
}

func registerDescriptor(svc Service) error {
	registerMu.Lock()
	defer registerMu.Unlock()

	if _, err := protoregistry.GlobalFiles.FindFileByPath(svc.FileName()); err == nil {
		return nil
	}

	// Ensure struct.proto is linked into the global registry.
	_ = structpb.File_google_protobuf_struct_proto

	service := &descriptorpb.ServiceDescriptorProto{Name: proto.String(svc.Name)}
	for _, m := range svc.Methods {
		service.Method = append(service.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.Name),
			InputType:  proto.String(structType),
			OutputType: proto.String(structType),
		})
	}
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(svc.FileName()),
		Package:    proto.String(svc.Package),
		Dependency: []string{"google/protobuf/struct.proto"},
		Syntax:     proto.String("proto3"),
		Service:    []*descriptorpb.ServiceDescriptorProto{service},
	}

	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		return fmt.Errorf("build descriptor for %s: %w", svc.FullName(), err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		return fmt.Errorf("register descriptor for %s: %w", svc.FullName(), err)
	}
	return nil
}

func unaryHandler(fullMethod string, h Handler) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h(ctx, req.(*structpb.Struct))
		})
	}
}

// Invoke calls a Struct-typed method over conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, svc Service, method string, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, svc.MethodPath(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}
