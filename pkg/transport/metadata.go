package transport

import (
	"context"

	"google.golang.org/grpc/metadata"
)

const selfIDHeader = "x-raftleader-id"

// outgoingContextWithSelf stamps the caller's own node id onto the RPC
// so the receiving side's Dispatcher knows who sent it, since raft
// peer ids are logical names, not derivable from the TCP peer address.
func outgoingContextWithSelf(ctx context.Context, self string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, selfIDHeader, self)
}

func peerFromContext(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get(selfIDHeader)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}
