package transport

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/sidecus/raftleader/pkg/util"
)

// Server hosts the hand-authored Transport gRPC service on a single
// listener and routes every inbound Envelope/Chunk stream to dispatcher.
// It implements Dispatcher itself, by delegation, purely so it satisfies
// serviceDesc.HandlerType when registered with grpc.Server.
type Server struct {
	dispatcher Dispatcher
	grpcServer *grpc.Server
}

func (s *Server) Dispatch(ctx context.Context, from string, message interface{}) {
	s.dispatcher.Dispatch(ctx, from, message)
}

func (s *Server) DispatchSnapshot(ctx context.Context, header *RawInstallSnapshot, body io.Reader) error {
	return s.dispatcher.DispatchSnapshot(ctx, header, body)
}

// NewServer wraps dispatcher with a *grpc.Server registered against the
// hand-authored serviceDesc.
func NewServer(dispatcher Dispatcher) *Server {
	s := &Server{dispatcher: dispatcher}
	s.grpcServer = grpc.NewServer()
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks accepting connections on addr until the listener fails
// or GracefulStop is called from another goroutine.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}

	util.WriteInfo("transport: serving on %s", addr)
	return s.grpcServer.Serve(lis)
}

// GracefulStop waits for in-flight RPCs to finish before returning.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}
