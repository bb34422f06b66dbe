package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// receiptsABI is the multi-token receipts contract: getReceipt returns the
// nested shape with a metadata tuple.
const receiptsABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "id", "type": "uint256"},
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "token", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "corridor", "type": "string"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "ReceiptCreated",
		"type": "event"
	},
	{
		"inputs": [{"name": "id", "type": "uint256"}],
		"name": "getReceipt",
		"outputs": [{
			"components": [
				{"name": "id", "type": "uint256"},
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "token", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{
					"components": [
						{"name": "category", "type": "uint8"},
						{"name": "reason", "type": "string"},
						{"name": "sourceCurrency", "type": "string"},
						{"name": "destinationCurrency", "type": "string"},
						{"name": "corridor", "type": "string"}
					],
					"name": "meta",
					"type": "tuple"
				},
				{"name": "timestamp", "type": "uint256"}
			],
			"name": "",
			"type": "tuple"
		}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "nextReceiptId",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "_token", "type": "address"},
			{"name": "_to", "type": "address"},
			{"name": "_amount", "type": "uint256"},
			{
				"components": [
					{"name": "category", "type": "uint8"},
					{"name": "reason", "type": "string"},
					{"name": "sourceCurrency", "type": "string"},
					{"name": "destinationCurrency", "type": "string"},
					{"name": "corridor", "type": "string"}
				],
				"name": "_meta",
				"type": "tuple"
			}
		],
		"name": "payWithReceipt",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// erc20ABI covers the allowance handshake on USDC.
const erc20ABI = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// routerABI is the FX router that swaps USDC and pays with a receipt.
const routerABI = `[
	{
		"inputs": [
			{"name": "tokenIn", "type": "address"},
			{"name": "tokenOut", "type": "address"},
			{"name": "amountIn", "type": "uint256"},
			{"name": "minAmountOut", "type": "uint256"},
			{"name": "recipient", "type": "address"},
			{"name": "category", "type": "uint8"},
			{"name": "reason", "type": "string"},
			{"name": "sourceCurrency", "type": "string"},
			{"name": "destinationCurrency", "type": "string"},
			{"name": "corridor", "type": "string"}
		],
		"name": "swapAndPay",
		"outputs": [{"name": "amountOut", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// Parsed contract interfaces.
var (
	ReceiptsABI = mustParse("receipts", receiptsABI)
	ERC20ABI    = mustParse("erc20", erc20ABI)
	RouterABI   = mustParse("router", routerABI)
)

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse %s ABI: %v", name, err))
	}
	return parsed
}
