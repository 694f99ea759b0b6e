package main

import (
	"encoding/json"
	"fmt"

	"github.com/directdev/directclient/internal/rpctypes"
)

// buildRequest constructs a JSON-RPC 2.0 request from a method name and a
// raw params argument (a JSON array/object string; empty means "[]").
func buildRequest(id int, method, paramsJSON string) (rpctypes.Request, error) {
	if paramsJSON == "" {
		paramsJSON = "[]"
	}
	if !json.Valid([]byte(paramsJSON)) {
		return rpctypes.Request{}, fmt.Errorf("params is not valid JSON: %s", paramsJSON)
	}
	return rpctypes.Request{
		ID:      id,
		JSONRPC: "2.0",
		Method:  method,
		Params:  []byte(paramsJSON),
	}, nil
}

// formatResponse renders a response for terminal display: the raw result
// bytes for success, or "code: message" for an error.
func formatResponse(resp rpctypes.Response) string {
	if resp.Error != nil {
		return fmt.Sprintf("error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result) == 0 {
		return "<empty>"
	}
	return string(resp.Result)
}
