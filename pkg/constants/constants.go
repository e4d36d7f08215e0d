package constants

import "time"

const (
	// BASE_NETWORK_ID is the chain id of Base mainnet, the only network transfers target.
	BASE_NETWORK_ID uint64 = 8453

	// BASE_USDC_ADDRESS is the USDC token contract on Base.
	BASE_USDC_ADDRESS = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

	USDC_DECIMALS uint8 = 6

	BALANCE_POLL_INTERVAL = 2000 * time.Millisecond

	// SIGN_MODE_ECDSA asks the relay for a digest signed by a single ECDSA owner key.
	SIGN_MODE_ECDSA = "ECDSA"

	ORDER_TYPE_AMOUNT_OUT = "AMOUNT_OUT"
)
