package operator

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote operator service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security. Extra options are
// applied after the defaults.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("operator: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("operator: encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func targetRequest(doorNums []int) map[string]any {
	req := map[string]any{}
	if len(doorNums) > 0 {
		req["doorNums"] = intList(doorNums)
	}
	return req
}

// StartCalibration starts collecting on doorNums, or on every sensor when
// doorNums is empty.
func (c *Client) StartCalibration(ctx context.Context, doorNums []int, target int) (map[string]any, error) {
	req := targetRequest(doorNums)
	if target > 0 {
		req["sampleTarget"] = target
	}
	return c.call(ctx, "StartCalibration", req)
}

func (c *Client) CancelCalibration(ctx context.Context, doorNums []int, resetOffset bool) (map[string]any, error) {
	req := targetRequest(doorNums)
	req["resetOffset"] = resetOffset
	return c.call(ctx, "CancelCalibration", req)
}

func (c *Client) ListCalibrations(ctx context.Context, doorNums []int) (map[string]any, error) {
	return c.call(ctx, "ListCalibrations", targetRequest(doorNums))
}

func (c *Client) SetSaveStatus(ctx context.Context, doorNums []int, status bool) (map[string]any, error) {
	req := targetRequest(doorNums)
	req["save_status"] = status
	return c.call(ctx, "SetSaveStatus", req)
}
