// Package tools is the fixed table of capabilities the voice model may call:
// their advertised schemas and the handlers that run them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-speaky/pkg/notify"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

// Tool names.
const (
	NameShowToast              = "show_toast"
	NameGetWalletBalance       = "get_wallet_balance"
	NameCheckWalletConnection  = "check_wallet_connection"
	NameSendEthereum           = "send_ethereum"
	NameEstimateTransactionGas = "estimate_transaction_gas"
)

// ErrorCode classifies a failed Result.
type ErrorCode string

// Error codes returned to the model.
const (
	CodeWalletNotConnected  ErrorCode = "WALLET_NOT_CONNECTED"
	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	CodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	CodeInvalidRecipient    ErrorCode = "INVALID_RECIPIENT"
	CodeTransactionFailed   ErrorCode = "TRANSACTION_FAILED"
	CodeGasEstimationFailed ErrorCode = "GAS_ESTIMATION_FAILED"
	CodeNetworkError        ErrorCode = "NETWORK_ERROR"
	CodeUserRejected        ErrorCode = "USER_REJECTED"
	CodeUnknownError        ErrorCode = "UNKNOWN_ERROR"
	CodeExecutionError      ErrorCode = "EXECUTION_ERROR"
)

// Property is one parameter in a tool schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Parameters is the JSON schema of a tool's arguments.
type Parameters struct {
	Type       string              `json:"type"`
	Strict     bool                `json:"strict"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Definition is the schema advertised to the model.
type Definition struct {
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

func (d Definition) clone() Definition {
	out := d
	out.Parameters.Properties = make(map[string]Property, len(d.Parameters.Properties))
	for k, p := range d.Parameters.Properties {
		p.Enum = append([]string(nil), p.Enum...)
		out.Parameters.Properties[k] = p
	}
	out.Parameters.Required = append([]string{}, d.Parameters.Required...)
	return out
}

// Result is the outcome of one tool call, serialized back to the model.
type Result struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
}

// Success builds a successful result.
func Success(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Failure builds a failed result. An empty code becomes UNKNOWN_ERROR.
func Failure(message string, code ErrorCode) Result {
	if code == "" {
		code = CodeUnknownError
	}
	return Result{Success: false, Message: message, ErrorCode: code}
}

// JSON serializes the result for a function_call_output item.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(Failure(fmt.Sprintf("result not serializable: %v", err), CodeExecutionError))
	}
	return string(data)
}

// WalletService is what handlers need from the wallet.
type WalletService interface {
	State() wallet.State
	Balance(ctx context.Context) (*wallet.Balance, error)
	SendTo(ctx context.Context, amount, recipient string) (*wallet.TxResult, error)
}

// Env is the shared context every handler runs with.
type Env struct {
	Wallet           WalletService
	Notifier         notify.Notifier
	DefaultRecipient string
	Logger           *slog.Logger
}

func (e *Env) notify(t notify.Toast) {
	if e != nil && e.Notifier != nil {
		e.Notifier.Notify(t)
	}
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) recipient() string {
	if e == nil || e.DefaultRecipient == "" {
		return wallet.DefaultRecipient
	}
	return e.DefaultRecipient
}

// Handler runs a tool. A returned error is turned into an EXECUTION_ERROR
// result by the caller.
type Handler func(ctx context.Context, args map[string]any, env *Env) (Result, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Registry is an immutable name to tool table.
type Registry struct {
	tools []Tool
	index map[string]int
}

// NewRegistry builds a registry. Names must be unique and non-empty.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(tools))}
	for _, t := range tools {
		name := t.Definition.Name
		if name == "" {
			return nil, fmt.Errorf("tools: tool without a name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tools: %s has no handler", name)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %s", name)
		}
		r.index[name] = len(r.tools)
		r.tools = append(r.tools, Tool{Definition: t.Definition.clone(), Handler: t.Handler})
	}
	return r, nil
}

// DefaultRegistry returns the built-in tool set.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Tool{Definition: showToastDefinition, Handler: HandleShowToast},
		Tool{Definition: getWalletBalanceDefinition, Handler: HandleGetWalletBalance},
		Tool{Definition: checkWalletConnectionDefinition, Handler: HandleCheckWalletConnection},
		Tool{Definition: sendEthereumDefinition, Handler: HandleSendEthereum},
		Tool{Definition: estimateGasDefinition, Handler: HandleEstimateGas},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	i, ok := r.index[name]
	if !ok {
		return Tool{}, false
	}
	t := r.tools[i]
	t.Definition = t.Definition.clone()
	return t, true
}

// Definitions returns copies of every schema in declaration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Definition.clone()
	}
	return out
}

// Names returns tool names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Definition.Name
	}
	return out
}

// Schema returns the definitions as generic JSON values, ready to embed in
// an event payload.
func (r *Registry) Schema() []any {
	data, err := json.Marshal(r.Definitions())
	if err != nil {
		return nil
	}
	var out []any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
