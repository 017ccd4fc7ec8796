package market

// listing maps an aggregator coin id to its display symbol and the
// venue trading pair, when one exists. Assets without an entry fall
// back to the aggregator for both quotes and history.
type listing struct {
	Symbol string
	Pair   string
}

var pairTable = map[string]listing{
	"bitcoin":            {Symbol: "BTC", Pair: "BTCUSDT"},
	"ethereum":           {Symbol: "ETH", Pair: "ETHUSDT"},
	"binancecoin":        {Symbol: "BNB", Pair: "BNBUSDT"},
	"solana":             {Symbol: "SOL", Pair: "SOLUSDT"},
	"ripple":             {Symbol: "XRP", Pair: "XRPUSDT"},
	"cardano":            {Symbol: "ADA", Pair: "ADAUSDT"},
	"dogecoin":           {Symbol: "DOGE", Pair: "DOGEUSDT"},
	"avalanche-2":        {Symbol: "AVAX", Pair: "AVAXUSDT"},
	"polkadot":           {Symbol: "DOT", Pair: "DOTUSDT"},
	"chainlink":          {Symbol: "LINK", Pair: "LINKUSDT"},
	"polygon":            {Symbol: "MATIC", Pair: "MATICUSDT"},
	"litecoin":           {Symbol: "LTC", Pair: "LTCUSDT"},
	"uniswap":            {Symbol: "UNI", Pair: "UNIUSDT"},
	"cosmos":             {Symbol: "ATOM", Pair: "ATOMUSDT"},
	"near":               {Symbol: "NEAR", Pair: "NEARUSDT"},
	"aptos":              {Symbol: "APT", Pair: "APTUSDT"},
	"arbitrum":           {Symbol: "ARB", Pair: "ARBUSDT"},
	"optimism":           {Symbol: "OP", Pair: "OPUSDT"},
	"internet-computer":  {Symbol: "ICP", Pair: "ICPUSDT"},
	"filecoin":           {Symbol: "FIL", Pair: "FILUSDT"},
	"injective-protocol": {Symbol: "INJ", Pair: "INJUSDT"},
	"sui":                {Symbol: "SUI", Pair: "SUIUSDT"},
	"stellar":            {Symbol: "XLM", Pair: "XLMUSDT"},
	"aave":               {Symbol: "AAVE", Pair: "AAVEUSDT"},
	"the-graph":          {Symbol: "GRT", Pair: "GRTUSDT"},
}

// denylist excludes stablecoins and wrapped assets from the tradeable
// universe; their price action carries no signal.
var denylist = map[string]struct{}{
	"tether":            {},
	"usd-coin":          {},
	"dai":               {},
	"binance-usd":       {},
	"true-usd":          {},
	"frax":              {},
	"first-digital-usd": {},
	"paypal-usd":        {},
	"staked-ether":      {},
	"wrapped-bitcoin":   {},
	"weth":              {},
	"wrapped-steth":     {},
	"rocket-pool-eth":   {},
}

// fallbackUniverse substitutes when the venue snapshot returns nothing
// at all, so a cycle never emits zero output.
var fallbackUniverse = []string{
	"bitcoin",
	"ethereum",
	"solana",
	"binancecoin",
	"ripple",
	"cardano",
	"dogecoin",
	"avalanche-2",
}

// PairFor returns the venue trading pair for an asset, if known.
func PairFor(asset string) (string, bool) {
	l, ok := pairTable[asset]
	return l.Pair, ok
}

// SymbolFor returns the display symbol for an asset, defaulting to the
// id itself.
func SymbolFor(asset string) string {
	if l, ok := pairTable[asset]; ok {
		return l.Symbol
	}
	return asset
}

// Denylisted reports whether the asset is a stablecoin or wrapper.
func Denylisted(asset string) bool {
	_, ok := denylist[asset]
	return ok
}
