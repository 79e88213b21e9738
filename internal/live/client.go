package live

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Mirror connects to a revenue relay and copies the stream into a local
// Window.
type Mirror struct {
	addr   string
	window *Window
	opts   []grpc.DialOption
	log    *slog.Logger
}

// NewMirror creates a mirror targeting the given gRPC address. Extra dial
// options are appended to the insecure transport default.
func NewMirror(addr string, w *Window, log *slog.Logger, opts ...grpc.DialOption) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	return &Mirror{addr: addr, window: w, opts: opts, log: log}
}

// Sync streams points into the window. It blocks until ctx is cancelled or
// the stream ends.
func (m *Mirror) Sync(ctx context.Context) error {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, m.opts...)
	conn, err := grpc.NewClient(m.addr, opts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", m.addr, err)
	}
	defer conn.Close()

	cs, err := conn.NewStream(ctx, &serviceDesc.Streams[0], streamMethod)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	stream := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: cs}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing send: %w", err)
	}

	m.log.Info("connected to live revenue stream", "addr", m.addr)

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving point: %w", err)
		}
		p, err := FromStruct(msg)
		if err != nil {
			m.log.Warn("skipping malformed point", "error", err)
			continue
		}
		m.window.Add(p)
	}
}
