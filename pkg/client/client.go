// Package client is a Go client for the basestore gRPC service.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nrjais/basestore/pkg/compress"
)

const (
	serviceName = "basestore.v1.BaseStore"
	actorHeader = "x-actor-id"
)

type Client struct {
	conn     *grpc.ClientConn
	owned    bool
	actor    string
	callOpts []grpc.CallOption
}

type Option func(*Client)

// WithActor sets the actor id sent with every call. A per-call actor set with
// ContextWithActor takes precedence.
func WithActor(actor string) Option {
	return func(c *Client) { c.actor = actor }
}

// WithCompression compresses requests with zstd.
func WithCompression() Option {
	return func(c *Client) { c.callOpts = append(c.callOpts, grpc.UseCompressor(compress.Name)) }
}

// NewClient dials serverAddr without transport security.
func NewClient(serverAddr string, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	c := NewFromConn(conn, opts...)
	c.owned = true
	return c, nil
}

// NewFromConn wraps an existing connection. Close leaves the connection open.
func NewFromConn(conn *grpc.ClientConn, opts ...Option) *Client {
	c := &Client{conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Close() error {
	if c.owned && c.conn != nil {
		slog.Debug("Closing gRPC client connection")
		return c.conn.Close()
	}
	return nil
}

// ContextWithActor overrides the client's actor for calls made with ctx.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, actorHeader, actor)
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	if md, _ := metadata.FromOutgoingContext(ctx); c.actor != "" && len(md.Get(actorHeader)) == 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, actorHeader, c.actor)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out, c.callOpts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) invokeList(ctx context.Context, method string, req map[string]any) ([]any, error) {
	out, err := c.invoke(ctx, method, req)
	if err != nil {
		return nil, err
	}
	data, _ := out["data"].([]any)
	return data, nil
}

func (c *Client) CreateBase(ctx context.Context, name string) (map[string]any, error) {
	return c.invoke(ctx, "CreateBase", map[string]any{"name": name})
}

func (c *Client) GetBase(ctx context.Context, id string) (map[string]any, error) {
	return c.invoke(ctx, "GetBase", map[string]any{"id": id})
}

func (c *Client) ListBases(ctx context.Context) ([]any, error) {
	return c.invokeList(ctx, "ListBases", map[string]any{})
}

func (c *Client) DeleteBase(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, "DeleteBase", map[string]any{"id": id})
	return err
}

// CreateField adds a field; config may be nil.
func (c *Client) CreateField(ctx context.Context, baseID, name, fieldType string, config map[string]any) (map[string]any, error) {
	req := map[string]any{"baseId": baseID, "name": name, "type": fieldType}
	if config != nil {
		req["config"] = config
	}
	return c.invoke(ctx, "CreateField", req)
}

func (c *Client) DeleteField(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, "DeleteField", map[string]any{"id": id})
	return err
}

func (c *Client) CreateOption(ctx context.Context, fieldID, name string, color *string) (map[string]any, error) {
	req := map[string]any{"fieldId": fieldID, "name": name}
	if color != nil {
		req["color"] = *color
	}
	return c.invoke(ctx, "CreateOption", req)
}

// UpdateOption changes only the non-nil attributes.
func (c *Client) UpdateOption(ctx context.Context, id string, name, color *string) (map[string]any, error) {
	req := map[string]any{"id": id}
	if name != nil {
		req["name"] = *name
	}
	if color != nil {
		req["color"] = *color
	}
	return c.invoke(ctx, "UpdateOption", req)
}

func (c *Client) DeleteOption(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, "DeleteOption", map[string]any{"id": id})
	return err
}

func (c *Client) ListOptions(ctx context.Context, fieldID string) ([]any, error) {
	return c.invokeList(ctx, "ListOptions", map[string]any{"fieldId": fieldID})
}

func (c *Client) CreateRecord(ctx context.Context, baseID, name string) (map[string]any, error) {
	return c.invoke(ctx, "CreateRecord", map[string]any{"baseId": baseID, "name": name})
}

func (c *Client) GetRecord(ctx context.Context, id string) (map[string]any, error) {
	return c.invoke(ctx, "GetRecord", map[string]any{"id": id})
}

// ListRecordsParams selects a page of records. Filter is a JSON object
// literal keyed by field name, e.g. {"Status":"Open"}. Zero Page and Limit use
// the server defaults.
type ListRecordsParams struct {
	BaseID string
	Filter string
	Sort   string
	Page   int
	Limit  int
}

// ListRecords returns the response {data, meta:{total, page, limit, totalPages}}.
func (c *Client) ListRecords(ctx context.Context, p ListRecordsParams) (map[string]any, error) {
	req := map[string]any{"baseId": p.BaseID}
	if p.Filter != "" {
		req["filter"] = p.Filter
	}
	if p.Sort != "" {
		req["sort"] = p.Sort
	}
	if p.Page != 0 {
		req["page"] = p.Page
	}
	if p.Limit != 0 {
		req["limit"] = p.Limit
	}
	return c.invoke(ctx, "ListRecords", req)
}

func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, "DeleteRecord", map[string]any{"id": id})
	return err
}

// UpsertValue sets one field of a record. value must be representable as
// JSON; nil clears it.
func (c *Client) UpsertValue(ctx context.Context, recordID, fieldID string, value any) (map[string]any, error) {
	normalized, err := normalize(value)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "UpsertValue", map[string]any{"recordId": recordID, "fieldId": fieldID, "value": normalized})
}

// normalize converts typed Go values such as []string into the generic form
// structpb accepts.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value is not representable as JSON: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
