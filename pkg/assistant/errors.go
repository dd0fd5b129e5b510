package assistant

import "errors"

// Sentinel errors for the assistant package.
var (
	// ErrUnknownTool indicates a tool name the registry does not know.
	ErrUnknownTool = errors.New("assistant: unknown tool")

	// ErrNoWallet indicates the assistant was built without a wallet.
	ErrNoWallet = errors.New("assistant: no wallet configured")
)
