package tools

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-speaky/pkg/wallet"
)

// VoiceCommandExamples are sample utterances per capability.
var VoiceCommandExamples = map[string][]string{
	"wallet_balance": {
		"What's my wallet balance?",
		"How much ETH do I have?",
		"Check my balance",
		"Show me my current balance",
	},
	"wallet_connection": {
		"Is my wallet connected?",
		"Am I connected to my wallet?",
		"Check wallet connection status",
	},
	"send_eth": {
		"Send 0.01 ETH to vitalik.eth",
		"Transfer 0.1 Ethereum to frank.eth",
		"Send one ETH to alice.eth",
		"Send 0.001 ETH to 0x742d35...",
		"Transfer 0.05 ETH to nick.eth",
	},
	"estimate_gas": {
		"How much will it cost to send 0.1 ETH?",
		"Estimate gas for sending 1 ETH",
		"What's the transaction fee for 0.05 ETH?",
	},
	"toast_notifications": {
		"Show me a success message",
		"Display an error notification",
		"Give me a warning",
		"Show an info message",
	},
}

// WelcomeMessage is the greeting injected when a session is configured.
const WelcomeMessage = "Hello! I'm Speaky, your voice-controlled blockchain assistant! " +
	"I can help you check your balance, send ETH to ENS addresses, and manage your wallet through natural conversation. " +
	"Try asking me 'What's my balance?' or 'Send 0.01 ETH to frank.eth' to get started!"

// ScenarioInstructions are canned replies for common situations.
var ScenarioInstructions = map[string]string{
	"wallet_not_connected": "I notice your wallet isn't connected yet. Connect it from the dashboard or restart with a signing key configured, and then I can help you with balance checks and transactions.",
	"first_time_user":      "Welcome to Speaky! I'm here to help you manage your Ethereum wallet with voice commands. First, make sure your wallet is connected, then try asking me about your balance or sending some ETH.",
	"transaction_success":  "Great! Your transaction was successful. You can ask me for your balance again to see the updated amount.",
	"transaction_failed":   "The transaction didn't go through. This usually happens if it was declined at the approval step or there wasn't enough ETH for gas fees. Would you like to try again or check your balance first?",
}

const instructionsTemplate = `You are Speaky, a helpful and friendly voice assistant specialized in Ethereum wallet management. You have tools that let you help users operate their wallet through natural voice commands.

## YOUR ROLE
Make blockchain interactions simple and accessible. Be helpful and encouraging with people new to crypto, clear when explaining wallet operations, proactive with suggestions, and careful about security. Always mention when a transaction needs the user's approval.

## AVAILABLE TOOLS & WHEN TO USE THEM

### 1. get_wallet_balance
USE WHEN: the user asks about their balance, funds, or ETH amount.
Always call the tool first, then give a friendly interpretation.

### 2. check_wallet_connection
USE WHEN: the user asks about connection status or seems unsure whether they are connected.
Give a clear status and explain how to connect if needed.

### 3. send_ethereum
USE WHEN: the user wants to send or transfer ETH. ENS names like "frank.eth" are supported.
When no recipient is named, the transfer goes to the test address %s.

### 4. show_toast
USE WHEN: you want to surface an important notification or celebrate an action.
Types: success (green), error (red), warning (yellow), info (blue).

### 5. estimate_transaction_gas (coming soon)
USE WHEN: the user asks about transaction costs or gas fees.
It is not implemented yet; tell the user it is coming soon.

## CONVERSATION GUIDELINES
- On first contact, briefly explain what you can do and suggest connecting the wallet if it is not connected.
- When a tool fails, be understanding, explain how to fix it, and use an error toast for important failures.
- Never ask for private keys or other secrets.
- Remind users that experiments should use testnet ETH.

## VOICE COMMAND RECOGNITION
Respond to natural variations like:
%s

Keep the tone conversational and natural, not robotic. Prioritize user security and clear communication.`

// SystemInstructions renders the instruction text advertised to the model.
// recipient is the default send target; empty uses the built-in test address.
func SystemInstructions(recipient string) string {
	if recipient == "" {
		recipient = wallet.DefaultRecipient
	}

	var examples []string
	for _, key := range []string{"wallet_balance", "wallet_connection", "send_eth"} {
		for _, cmd := range VoiceCommandExamples[key] {
			examples = append(examples, fmt.Sprintf("- %q", cmd))
		}
	}

	return fmt.Sprintf(instructionsTemplate, recipient, strings.Join(examples, "\n"))
}
