package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/types"
)

const (
	methodBlockNumber = "eth_blockNumber"
	methodSyncing     = "eth_syncing"
)

// JSONRPCProber probes Ethereum-style execution clients over JSON-RPC.
// It asks for the current block height (the progress counter) and the
// sync status in two calls per probe.
type JSONRPCProber struct {
	// Client is the HTTP client to use (allows custom configuration)
	Client *http.Client
}

// NewJSONRPCProber creates a JSON-RPC prober with the given per-call timeout
func NewJSONRPCProber(timeout time.Duration) *JSONRPCProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &JSONRPCProber{
		Client: &http.Client{Timeout: timeout},
	}
}

// WithClient sets a custom HTTP client
func (p *JSONRPCProber) WithClient(client *http.Client) *JSONRPCProber {
	p.Client = client
	return p
}

// Probe queries block height and sync status. The node counts as reachable
// only when the block-height call answers; the sync status is best effort.
func (p *JSONRPCProber) Probe(ctx context.Context, endpoint string) types.Observation {
	var obs types.Observation

	height, err := p.blockNumber(ctx, endpoint)
	if err != nil {
		return obs // Reachable == false
	}
	obs.Reachable = true
	obs.Progress = &height

	syncing, err := p.syncing(ctx, endpoint)
	if err == nil {
		obs.Syncing = &syncing
	}

	return obs
}

// blockNumber calls eth_blockNumber and parses the hex quantity
func (p *JSONRPCProber) blockNumber(ctx context.Context, endpoint string) (uint64, error) {
	var result string
	if err := p.call(ctx, endpoint, methodBlockNumber, &result); err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(result, "0x"), 16, 64)
}

// syncing calls eth_syncing; the result is false when fully synced and a
// progress object while the bulk sync is still running
func (p *JSONRPCProber) syncing(ctx context.Context, endpoint string) (bool, error) {
	var result json.RawMessage
	if err := p.call(ctx, endpoint, methodSyncing, &result); err != nil {
		return false, err
	}

	// A boolean result (false once synced) ends the bulk sync phase; any
	// other shape is a sync-progress object.
	var b bool
	if err := json.Unmarshal(result, &b); err == nil {
		return b, nil
	}
	return true, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one JSON-RPC request and decodes the result field
func (p *JSONRPCProber) call(ctx context.Context, endpoint, method string, result any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []any{},
		ID:      1,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return &callError{method: method, message: rpcResp.Error.Message}
	}

	return json.Unmarshal(rpcResp.Result, result)
}

type callError struct {
	method  string
	message string
}

func (e *callError) Error() string {
	return e.method + ": " + e.message
}
