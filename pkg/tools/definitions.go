package tools

func function(name, description string, props map[string]Property, required ...string) Definition {
	if props == nil {
		props = map[string]Property{}
	}
	if required == nil {
		required = []string{}
	}
	return Definition{
		Type:        "function",
		Name:        name,
		Description: description,
		Parameters: Parameters{
			Type:       "object",
			Strict:     true,
			Properties: props,
			Required:   required,
		},
	}
}

var showToastDefinition = function(NameShowToast,
	"Display a toast notification to the user. Use this to show success messages, errors, warnings, or general information.",
	map[string]Property{
		"title": {
			Type:        "string",
			Description: "The main title of the toast notification (required)",
		},
		"description": {
			Type:        "string",
			Description: "Optional description text providing more details",
		},
		"type": {
			Type:        "string",
			Enum:        []string{"success", "error", "info", "warning"},
			Description: "The type/color of notification: success (green), error (red), info (blue), warning (yellow)",
		},
		"icon": {
			Type:        "string",
			Description: `Optional Lucide icon name (e.g., "check", "alert-circle", "info")`,
		},
	},
	"title",
)

var getWalletBalanceDefinition = function(NameGetWalletBalance,
	"Get the current Ethereum wallet balance in ETH. The wallet must be connected first. Returns formatted balance and wallet address.",
	nil,
)

var checkWalletConnectionDefinition = function(NameCheckWalletConnection,
	"Check if the Ethereum wallet is currently connected and return connection status with wallet address if available.",
	nil,
)

var sendEthereumDefinition = function(NameSendEthereum,
	"Send Ethereum to an address or ENS name. The transaction may need the user's approval before it is broadcast.",
	map[string]Property{
		"amount": {
			Type:        "string",
			Description: `The amount of ETH to send as a string (e.g., "0.01", "0.1", "1.0"). Must be between 0 and 1000 ETH.`,
		},
		"recipient": {
			Type:        "string",
			Description: `The recipient address or ENS name (e.g., "vitalik.eth", "0x123..."). If not provided, uses test address.`,
		},
	},
	"amount",
)

var estimateGasDefinition = function(NameEstimateTransactionGas,
	"Estimate the gas cost for sending a specific amount of ETH. Provides estimated gas fee in ETH and USD equivalent.",
	map[string]Property{
		"amount": {
			Type:        "string",
			Description: `The amount of ETH to estimate gas for (e.g., "0.01", "0.1", "1.0")`,
		},
	},
	"amount",
)
