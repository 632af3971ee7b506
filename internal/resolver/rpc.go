package resolver

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/weftlang/weftsync/internal/checksum"
)

// RPC method names of the metadata resolution service.
const (
	MethodGetDelta = "metadata/getDelta"
	MethodFetch    = "metadata/fetch"
)

// GetDeltaParams is the wire shape of a metadata/getDelta request.
type GetDeltaParams struct {
	Project      ProjectHandle `json:"project"`
	LastResultID int           `json:"lastResultId"`
}

// FetchParams is the wire shape of a metadata/fetch request.
type FetchParams struct {
	Project   ProjectHandle       `json:"project"`
	Checksums []checksum.Checksum `json:"checksums"`
}

// RPCClient implements MetadataClient over a persistent JSON-RPC 2.0
// connection to the out-of-process metadata service.
type RPCClient struct {
	conn *jsonrpc2.Conn
}

// NewRPCClient wraps an established transport. The caller owns the
// transport's lifetime; closing the client closes it.
func NewRPCClient(ctx context.Context, rwc io.ReadWriteCloser) *RPCClient {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	return &RPCClient{
		conn: jsonrpc2.NewConn(ctx, stream, noopHandler{}),
	}
}

// DialRPC connects to the metadata service over TCP.
func DialRPC(ctx context.Context, addr string) (*RPCClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolver: dialing metadata service: %w", err)
	}
	return NewRPCClient(ctx, conn), nil
}

// GetDelta implements MetadataClient.
func (c *RPCClient) GetDelta(ctx context.Context, handle ProjectHandle, lastResultID int) (*DeltaResult, error) {
	var result DeltaResult
	err := c.conn.Call(ctx, MethodGetDelta, GetDeltaParams{
		Project:      handle,
		LastResultID: lastResultID,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("resolver: %s: %w", MethodGetDelta, err)
	}
	return &result, nil
}

// Fetch implements MetadataClient.
func (c *RPCClient) Fetch(ctx context.Context, handle ProjectHandle, checksums []checksum.Checksum) ([]MetadataItem, error) {
	var items []MetadataItem
	err := c.conn.Call(ctx, MethodFetch, FetchParams{
		Project:   handle,
		Checksums: checksums,
	}, &items)
	if err != nil {
		return nil, fmt.Errorf("resolver: %s: %w", MethodFetch, err)
	}
	return items, nil
}

// Close tears down the connection.
func (c *RPCClient) Close() error {
	return c.conn.Close()
}

// noopHandler ignores server-initiated requests; the metadata service
// speaks strictly request/response.
type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}
