package token

import "github.com/gagliardetto/solana-go"

const logoBase = "https://raw.githubusercontent.com/solana-labs/token-list/main/assets/mainnet/"

var (
	SOL = Token{
		Symbol:   "SOL",
		Name:     "Solana",
		Mint:     solana.SolMint,
		Decimals: 9,
		LogoURI:  logoBase + "So11111111111111111111111111111111111111112/logo.png",
		Kind:     Native,
	}

	USDC = Token{
		Symbol:   "USDC",
		Name:     "USD Coin",
		Mint:     solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		Decimals: 6,
		LogoURI:  logoBase + "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v/logo.png",
		Kind:     Fungible,
	}

	USDT = Token{
		Symbol:   "USDT",
		Name:     "USDT",
		Mint:     solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"),
		Decimals: 6,
		LogoURI:  logoBase + "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB/logo.svg",
		Kind:     Fungible,
	}

	BONK = Token{
		Symbol:   "BONK",
		Name:     "Bonk",
		Mint:     solana.MustPublicKeyFromBase58("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"),
		Decimals: 5,
		LogoURI:  "https://arweave.net/hQiPZOsRZXGXBJd_82PhVdlM_hACsT_q6wqwf5cSY7I",
		Kind:     Fungible,
	}

	JUP = Token{
		Symbol:   "JUP",
		Name:     "Jupiter",
		Mint:     solana.MustPublicKeyFromBase58("JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"),
		Decimals: 6,
		LogoURI:  "https://static.jup.ag/jup/icon.png",
		Kind:     Fungible,
	}
)

// Default returns the built-in registry. SOL and USDC come first so a new
// session starts on SOL -> USDC.
func Default() *Registry {
	return &Registry{tokens: []Token{SOL, USDC, USDT, BONK, JUP}}
}
