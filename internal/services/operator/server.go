// Package operator exposes the calibration and save-gate commands over gRPC.
// Requests and responses are google.protobuf.Struct documents carrying the
// same fields the gateway dashboard posts.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

const ServiceName = "sitewatch.operator.v1.Operator"

// Commands is the command surface of the calibration engine.
type Commands interface {
	Start(ctx context.Context, doorNums []int, target int) error
	Cancel(ctx context.Context, doorNums []int, resetOffset bool) (int, error)
	SetSaveStatus(ctx context.Context, doorNums []int, status bool) (matched, changed int, err error)
	Calibrations(ctx context.Context, doorNums []int) ([]entities.AngleCalibration, error)
	Sensors(ctx context.Context) ([]int, error)
}

// OperatorServer is the server API of the operator service.
type OperatorServer interface {
	StartCalibration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelCalibration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCalibrations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetSaveStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type Server struct {
	cmds Commands
	log  *slog.Logger
}

func NewServer(cmds Commands, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cmds: cmds, log: log.With("component", "operator")}
}

// Register attaches the service to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv OperatorServer) {
	s.RegisterService(&serviceDesc, srv)
}

// targets resolves the sensors a command applies to, falling back to every
// registered sensor.
func (s *Server) targets(ctx context.Context, req *structpb.Struct) ([]int, error) {
	ids := doorNums(req)
	if len(ids) > 0 {
		return ids, nil
	}
	all, err := s.cmds.Sensors(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list sensors: %v", err)
	}
	if len(all) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no sensors registered")
	}
	return all, nil
}

func (s *Server) StartCalibration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := s.targets(ctx, req)
	if err != nil {
		return nil, err
	}
	target := sampleTarget(req)
	if err := s.cmds.Start(ctx, ids, target); err != nil {
		s.log.Error("start calibration failed", "sensors", ids, "err", err)
		return nil, status.Errorf(codes.Internal, "start calibration: %v", err)
	}
	return response(map[string]any{
		"message": fmt.Sprintf("Calibration collecting started for %d door(s)", len(ids)),
		"target":  target,
		"doors":   intList(ids),
	})
}

func (s *Server) CancelCalibration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := s.targets(ctx, req)
	if err != nil {
		return nil, err
	}
	reset, _ := boolField(req, "resetOffset")
	matched, err := s.cmds.Cancel(ctx, ids, reset)
	if err != nil {
		s.log.Error("cancel calibration failed", "sensors", ids, "err", err)
		return nil, status.Errorf(codes.Internal, "cancel calibration: %v", err)
	}
	return response(map[string]any{
		"message":     fmt.Sprintf("Calibration collecting canceled for %d door(s)", len(ids)),
		"resetOffset": reset,
		"doors":       intList(ids),
		"matched":     matched,
	})
}

// ListCalibrations returns the records of the named sensors, or all of them.
func (s *Server) ListCalibrations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	recs, err := s.cmds.Calibrations(ctx, doorNums(req))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list calibrations: %v", err)
	}
	list := make([]any, 0, len(recs))
	for _, rec := range recs {
		v, err := toStruct(rec)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode calibration %d: %v", rec.DoorNum, err)
		}
		list = append(list, v.AsMap())
	}
	return response(map[string]any{"count": len(recs), "calibrations": list})
}

// SetSaveStatus needs explicit sensors; it never applies to all of them.
func (s *Server) SetSaveStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	value, ok := boolField(req, "save_status")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "save_status (boolean) is required")
	}
	ids := doorNums(req)
	if len(ids) == 0 {
		return nil, status.Error(codes.InvalidArgument, "doorNum or doorNums is required")
	}
	matched, changed, err := s.cmds.SetSaveStatus(ctx, ids, value)
	if err != nil {
		s.log.Error("set save status failed", "sensors", ids, "err", err)
		return nil, status.Errorf(codes.Internal, "set save status: %v", err)
	}
	return response(map[string]any{
		"save_status": value,
		"doors":       intList(ids),
		"matched":     matched,
		"changed":     changed,
	})
}

func response(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoggingInterceptor logs every call with its status code and duration.
func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelInfo
		if code != codes.OK {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "grpc call", "method", info.FullMethod, "code", code.String(), "took", time.Since(start))
		return resp, err
	}
}

func unary(name string, call func(OperatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(OperatorServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OperatorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartCalibration", OperatorServer.StartCalibration),
		unary("CancelCalibration", OperatorServer.CancelCalibration),
		unary("ListCalibrations", OperatorServer.ListCalibrations),
		unary("SetSaveStatus", OperatorServer.SetSaveStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sitewatch/operator/v1/operator.proto",
}
