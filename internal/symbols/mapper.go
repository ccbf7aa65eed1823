package symbols

import "strings"

// Normalize converts an exchange-specific instrument identifier to the shared
// base-asset key used for cross-venue joins. OKX quotes linear swaps as
// BTC-USDT-SWAP, Bybit as BTCUSDT; both map to BTC.
// Identifiers that are not USDT linear instruments are returned unchanged.
func Normalize(exchange, instID string) string {
	switch strings.ToLower(exchange) {
	case "okx":
		if strings.HasSuffix(instID, "-USDT-SWAP") {
			return strings.TrimSuffix(instID, "-USDT-SWAP")
		}
	case "bybit":
		if strings.HasSuffix(instID, "USDT") {
			return strings.TrimSuffix(instID, "USDT")
		}
	}
	return instID
}

// IsUSDTLinear reports whether the identifier denotes a USDT-margined linear
// instrument on the given venue.
func IsUSDTLinear(exchange, instID string) bool {
	switch strings.ToLower(exchange) {
	case "okx":
		return strings.HasSuffix(instID, "-USDT-SWAP")
	case "bybit":
		return strings.HasSuffix(instID, "USDT")
	}
	return false
}

// OkxInstID rebuilds the OKX swap identifier from a normalized base key.
func OkxInstID(base string) string {
	return base + "-USDT-SWAP"
}

// BybitSymbol rebuilds the Bybit linear symbol from a normalized base key.
func BybitSymbol(base string) string {
	return base + "USDT"
}
