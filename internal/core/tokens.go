package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes an ERC-20 stablecoin the receipts contract and FX router accept.
type Token struct {
	Symbol   string
	Name     string
	Address  common.Address
	Decimals uint8
}

// USDCAddress is the token recorded for receipts whose contract variant has no token field.
var USDCAddress = common.HexToAddress("0x3600000000000000000000000000000000000000")

// The registry is fixed at init and only ever handed out by value.
var tokenRegistry = []Token{
	{Symbol: "USDC", Name: "USD Coin", Address: USDCAddress, Decimals: 6},
	{Symbol: "EURC", Name: "Euro Coin", Address: common.HexToAddress("0x89B50855Aa3bE2F677cD6303Cec089B5F319D72a"), Decimals: 6},
	{Symbol: "JPYC", Name: "Japanese Yen Coin", Address: common.HexToAddress("0x1111111111111111111111111111111111111111"), Decimals: 18},
	{Symbol: "BRLA", Name: "Brazilian Real Token", Address: common.HexToAddress("0x2222222222222222222222222222222222222222"), Decimals: 18},
}

// Tokens returns a copy of the supported token list.
func Tokens() []Token {
	return append([]Token(nil), tokenRegistry...)
}

// TokenBySymbol looks a token up by ticker, ignoring case.
func TokenBySymbol(symbol string) (Token, bool) {
	for _, t := range tokenRegistry {
		if strings.EqualFold(t.Symbol, strings.TrimSpace(symbol)) {
			return t, true
		}
	}
	return Token{}, false
}

// TokenByAddress looks a token up by contract address.
func TokenByAddress(addr common.Address) (Token, bool) {
	for _, t := range tokenRegistry {
		if t.Address == addr {
			return t, true
		}
	}
	return Token{}, false
}

// Explorer builds block explorer links.
type Explorer struct {
	BaseURL string
}

// TxURL links to a transaction page.
func (e Explorer) TxURL(hash string) string {
	return strings.TrimRight(e.BaseURL, "/") + "/tx/" + hash
}

// AddressURL links to an address page.
func (e Explorer) AddressURL(addr common.Address) string {
	return strings.TrimRight(e.BaseURL, "/") + "/address/" + addr.Hex()
}
