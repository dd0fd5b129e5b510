package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/teslashibe/go-speaky/pkg/notify"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

const (
	msgWalletNotConnected = "Wallet not connected. Please connect your wallet first to use this feature."
	msgInvalidAmount      = "Invalid amount: %q. Please specify a valid amount between 0 and 1000 ETH."
)

// stringArg reads a string argument. Numbers are accepted and rendered
// without exponent, since models sometimes send amounts unquoted.
func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func requireWallet(env *Env) (WalletService, *Result) {
	if env == nil || env.Wallet == nil || !env.Wallet.State().Connected {
		r := Failure(msgWalletNotConnected, CodeWalletNotConnected)
		return nil, &r
	}
	return env.Wallet, nil
}

// CodeFor maps a wallet error to the code reported to the model.
func CodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, wallet.ErrNotConnected):
		return CodeWalletNotConnected
	case errors.Is(err, wallet.ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, wallet.ErrInvalidRecipient):
		return CodeInvalidRecipient
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, wallet.ErrUserRejected):
		return CodeUserRejected
	default:
		return CodeTransactionFailed
	}
}

// HandleShowToast displays a notification.
func HandleShowToast(_ context.Context, args map[string]any, env *Env) (Result, error) {
	title := stringArg(args, "title")
	if title == "" {
		return Failure("Failed to display toast notification: a title is required", CodeUnknownError), nil
	}
	if env == nil || env.Notifier == nil {
		return Failure("Failed to display toast notification", CodeUnknownError), nil
	}

	kind := stringArg(args, "type")
	env.notify(notify.Toast{
		Title:       title,
		Description: stringArg(args, "description"),
		Color:       notify.ColorFor(kind),
		Icon:        stringArg(args, "icon"),
	})

	return Success(fmt.Sprintf("Toast notification displayed: %q", title), map[string]any{
		"type":  kind,
		"title": title,
	}), nil
}

// HandleGetWalletBalance reports the current balance.
func HandleGetWalletBalance(ctx context.Context, _ map[string]any, env *Env) (Result, error) {
	w, fail := requireWallet(env)
	if fail != nil {
		return *fail, nil
	}

	balance, err := w.Balance(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrNotConnected) {
			return Failure(msgWalletNotConnected, CodeWalletNotConnected), nil
		}
		env.logger().Warn("balance load failed", "error", err)
		return Failure("Failed to load wallet balance. Please try again.", CodeNetworkError), nil
	}
	if balance == nil {
		return Failure("Failed to load wallet balance. Please try again.", CodeNetworkError), nil
	}

	return Success(fmt.Sprintf("Your wallet balance is %s", balance.Formatted), map[string]any{
		"balance": balance.Formatted,
		"address": w.State().Address,
		"wei":     balance.Wei.String(),
		"eth":     balance.ETH,
	}), nil
}

// HandleCheckWalletConnection reports connected, connecting or not connected.
// All three are successful results.
func HandleCheckWalletConnection(_ context.Context, _ map[string]any, env *Env) (Result, error) {
	var state wallet.State
	if env != nil && env.Wallet != nil {
		state = env.Wallet.State()
	}

	switch {
	case state.Connected && state.Address != "":
		short := wallet.FormatAddress(state.Address)
		return Success(fmt.Sprintf("Wallet is connected to address %s", short), map[string]any{
			"isConnected":  true,
			"address":      state.Address,
			"shortAddress": short,
		}), nil
	case state.Connecting:
		return Success("Wallet connection is in progress...", map[string]any{
			"isConnected":  false,
			"isConnecting": true,
		}), nil
	default:
		return Success("No wallet is currently connected. Please connect your wallet to use blockchain features.", map[string]any{
			"isConnected":  false,
			"isConnecting": false,
		}), nil
	}
}

// HandleSendEthereum sends ETH to a hex address, an ENS name or, when no
// recipient is given, the default test recipient.
func HandleSendEthereum(ctx context.Context, args map[string]any, env *Env) (Result, error) {
	w, fail := requireWallet(env)
	if fail != nil {
		return *fail, nil
	}

	amount := stringArg(args, "amount")
	if !wallet.IsValidAmount(amount) {
		return Failure(fmt.Sprintf(msgInvalidAmount, amount), CodeInvalidAmount), nil
	}

	requested := stringArg(args, "recipient")
	recipient := requested
	if recipient == "" {
		recipient = env.recipient()
	}

	if requested != "" && strings.Contains(requested, ".") {
		env.notify(notify.Toast{
			Title:       "Resolving ENS Name",
			Description: fmt.Sprintf("Looking up %s...", requested),
			Color:       notify.ColorInfo,
		})
	}

	res, err := w.SendTo(ctx, amount, recipient)
	if err != nil {
		return sendFailure(env, recipient, err), nil
	}

	display := "test address"
	if requested != "" {
		display = requested
		if res.ResolvedAddress != requested {
			display = fmt.Sprintf("%s (%s)", requested, wallet.FormatAddress(res.ResolvedAddress))
		}
	}

	env.notify(notify.Toast{
		Title:       "Transaction Sent!",
		Description: fmt.Sprintf("Successfully sent %s ETH to %s", amount, display),
		Color:       notify.ColorSuccess,
	})

	return Success(fmt.Sprintf("Successfully sent %s ETH to %s! Transaction hash: %s", amount, display, res.Hash), map[string]any{
		"amount":          amount,
		"hash":            res.Hash,
		"recipient":       recipient,
		"resolvedAddress": res.ResolvedAddress,
	}), nil
}

func sendFailure(env *Env, recipient string, err error) Result {
	env.logger().Warn("send failed", "recipient", recipient, "error", err)

	if errors.Is(err, wallet.ErrInvalidAmount) {
		return Failure(fmt.Sprintf("Failed to send ETH: %v", err), CodeInvalidAmount)
	}

	// The wallet can disconnect between the handler's check and the send;
	// report that as a generic send error.
	if errors.Is(err, wallet.ErrNotConnected) {
		env.notify(notify.Toast{
			Title:       "Transaction Error",
			Description: err.Error(),
			Color:       notify.ColorError,
		})
		return Failure(fmt.Sprintf("Failed to send ETH: %v", err), CodeTransactionFailed)
	}

	code := CodeFor(err)
	message := err.Error()
	if code == CodeInvalidRecipient {
		message = fmt.Sprintf("Could not resolve %q. Please check the ENS name or address.", recipient)
	}

	env.notify(notify.Toast{
		Title:       "Transaction Failed",
		Description: message,
		Color:       notify.ColorError,
	})
	return Failure(message, code)
}

// HandleEstimateGas validates its input and then reports that estimation is
// not available. The tool stays advertised so the model knows it exists.
func HandleEstimateGas(_ context.Context, args map[string]any, env *Env) (Result, error) {
	if _, fail := requireWallet(env); fail != nil {
		return *fail, nil
	}

	amount := stringArg(args, "amount")
	if !wallet.IsValidAmount(amount) {
		return Failure(fmt.Sprintf(msgInvalidAmount, amount), CodeInvalidAmount), nil
	}

	return Failure("Gas estimation feature is not yet implemented", CodeUnknownError), nil
}
