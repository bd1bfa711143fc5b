package relay

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sosrelay/delivery"
	"github.com/hazyhaar/sosrelay/kit"
)

// RegisterMCP registers the relay tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSendTool(srv)
	s.registerGetTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func (s *Service) registerSendTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "sosrelay_send_alert",
		Description: "Deliver a text alert to a phone number through the messaging web app. " +
			"Blocks until every strategy has been tried and returns the delivery result.",
		InputSchema: inputSchema(map[string]any{
			"phone":   map[string]any{"type": "string", "description": "Destination phone number, international format"},
			"message": map[string]any{"type": "string", "description": "Alert text"},
		}, []string{"phone", "message"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*alertRequest)
		dr, err := delivery.NewRequest(r.Phone, r.Message)
		if err != nil {
			return nil, err
		}
		res, err := s.DeliverNow(ctx, dr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"summary": res.Summary(), "result": res}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r alertRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

type getRequest struct {
	RequestID string `json:"request_id"`
}

func (s *Service) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sosrelay_get_alert",
		Description: "Return the journalled status and attempts of a delivery request.",
		InputSchema: inputSchema(map[string]any{
			"request_id": map[string]any{"type": "string", "description": "ID returned when the alert was queued"},
		}, []string{"request_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Status(ctx, req.(*getRequest).RequestID)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r getRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.RequestID == "" {
			return nil, errors.New("request_id is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
