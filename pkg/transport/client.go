package transport

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sidecus/raftleader/pkg/util"
)

// Resolver maps a logical peer id (as used throughout pkg/raft) to a
// dialable network address.
type Resolver func(peerID string) (addr string, ok bool)

// Client implements raft.Transport over the hand-authored gRPC service:
// Send maps onto the unary Deliver RPC, Stream onto the client-streaming
// StreamSnapshot RPC. Connections are dialed lazily per peer and cached,
// mirroring the teacher's per-peer proxy-factory pattern.
type Client struct {
	self     string
	resolve  Resolver

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewClient creates a Client that stamps self onto every outbound call
// and dials peers on demand via resolve.
func NewClient(self string, resolve Resolver) *Client {
	return &Client{self: self, resolve: resolve, conns: make(map[string]*grpc.ClientConn)}
}

func (c *Client) connFor(peer string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[peer]; ok {
		return conn, nil
	}

	addr, ok := c.resolve(peer)
	if !ok {
		return nil, errors.Errorf("transport: no address known for peer %s", peer)
	}

	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "dialing peer %s at %s", peer, addr)
	}

	c.conns[peer] = conn
	return conn, nil
}

// Send implements raft.Transport.Send via the unary Deliver RPC.
func (c *Client) Send(ctx context.Context, peer string, message interface{}) error {
	conn, err := c.connFor(peer)
	if err != nil {
		return err
	}

	ctx = outgoingContextWithSelf(ctx, c.self)
	env := &Envelope{Message: message}
	ack := &Ack{}
	if err := conn.Invoke(ctx, fullMethod(methodDeliver), env, ack, grpc.CallContentSubtype(codecName)); err != nil {
		return errors.Wrapf(err, "delivering to %s", peer)
	}
	return nil
}

// Stream implements raft.Transport.Stream via the client-streaming
// StreamSnapshot RPC: header goes in the first Chunk, then bodyWriter is
// handed a chunkWriter that frames every write into a Chunk.Data frame.
func (c *Client) Stream(ctx context.Context, peer string, header interface{}, bodyWriter func(io.Writer) error) error {
	conn, err := c.connFor(peer)
	if err != nil {
		return err
	}

	ctx = outgoingContextWithSelf(ctx, c.self)
	desc := &grpc.StreamDesc{StreamName: methodStreamSnapshot, ClientStreams: true}
	stream, err := conn.NewStream(ctx, desc, fullMethod(methodStreamSnapshot), grpc.CallContentSubtype(codecName))
	if err != nil {
		return errors.Wrapf(err, "opening snapshot stream to %s", peer)
	}

	if err := stream.SendMsg(&Chunk{Header: header}); err != nil {
		return errors.Wrapf(err, "sending snapshot header to %s", peer)
	}

	w := &chunkWriter{stream: stream}
	if err := bodyWriter(w); err != nil {
		return errors.Wrapf(err, "streaming snapshot body to %s", peer)
	}

	if err := stream.CloseSend(); err != nil {
		return errors.Wrapf(err, "closing snapshot stream to %s", peer)
	}

	var ack Ack
	if err := stream.RecvMsg(&ack); err != nil {
		return errors.Wrapf(err, "awaiting snapshot ack from %s", peer)
	}

	util.WriteTrace("transport: snapshot stream to %s completed", peer)
	return nil
}

// Close tears down every cached peer connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for peer, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "closing connection to %s", peer)
		}
	}
	c.conns = make(map[string]*grpc.ClientConn)
	return firstErr
}

// chunkWriter adapts io.Writer onto repeated Chunk.Data sends on an
// already-open client stream.
type chunkWriter struct {
	stream grpc.ClientStream
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	if err := w.stream.SendMsg(&Chunk{Data: buf}); err != nil {
		return 0, err
	}
	return len(p), nil
}
