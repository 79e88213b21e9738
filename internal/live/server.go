package live

import (
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"findash/internal/domain"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "findash.live.v1.RevenueFeed"

const streamMethod = "/" + ServiceName + "/Stream"

// RevenueFeedServer is the server API of the revenue relay.
type RevenueFeedServer interface {
	Stream(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RevenueFeedServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Stream",
		Handler:       streamHandler,
		ServerStreams: true,
	}},
	Metadata: "findash/live/v1/feed.proto",
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RevenueFeedServer).Stream(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// Server relays the revenue feed to gRPC clients. Every client stream opens
// its own upstream connection.
type Server struct {
	src  Source
	size int
	log  *slog.Logger
}

// NewServer creates a relay for src with windows of the given size.
func NewServer(src Source, size int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{src: src, size: size, log: log}
}

// RegisterGRPC registers the relay on gs.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Stream forwards feed points until the client disconnects or the upstream
// closes.
func (s *Server) Stream(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	s.log.Info("grpc live client subscribed")
	err := Stream(stream.Context(), s.src, s.size, func(p domain.RevenuePoint) error {
		msg, err := ToStruct(p)
		if err != nil {
			return err
		}
		return stream.Send(msg)
	})
	s.log.Info("grpc live client finished", "error", err)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	return nil
}

// ToStruct encodes a point as a protobuf Struct.
func ToStruct(p domain.RevenuePoint) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"period":  p.Period,
		"revenue": p.Revenue,
		"profit":  p.Profit,
	})
}

// FromStruct decodes a point encoded by ToStruct.
func FromStruct(s *structpb.Struct) (domain.RevenuePoint, error) {
	f := s.GetFields()
	period, ok := f["period"]
	if !ok {
		return domain.RevenuePoint{}, fmt.Errorf("missing period")
	}
	return domain.RevenuePoint{
		Period:  period.GetStringValue(),
		Revenue: f["revenue"].GetNumberValue(),
		Profit:  f["profit"].GetNumberValue(),
	}, nil
}
