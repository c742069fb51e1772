package models

// Interval records mirror the Midgard v2 history payloads. Every numeric value is
// carried as the decimal text Midgard sent, so re-ingestion never drifts.
// ID is the store's insertion identity and is never serialized.

type DepthInterval struct {
	ID             int64  `json:"-" db:"id"`
	AssetDepth     string `json:"assetDepth" db:"asset_depth"`
	AssetPrice     string `json:"assetPrice" db:"asset_price"`
	AssetPriceUSD  string `json:"assetPriceUSD" db:"asset_price_usd"`
	EndTime        string `json:"endTime" db:"end_time"`
	LiquidityUnits string `json:"liquidityUnits" db:"liquidity_units"`
	Luvi           string `json:"luvi" db:"luvi"`
	MembersCount   string `json:"membersCount" db:"members_count"`
	RuneDepth      string `json:"runeDepth" db:"rune_depth"`
	StartTime      string `json:"startTime" db:"start_time"`
	SynthSupply    string `json:"synthSupply" db:"synth_supply"`
	SynthUnits     string `json:"synthUnits" db:"synth_units"`
	Units          string `json:"units" db:"units"`
}

type SwapsInterval struct {
	ID                     int64  `json:"-" db:"id"`
	AverageSlip            string `json:"averageSlip" db:"average_slip"`
	EndTime                string `json:"endTime" db:"end_time"`
	FromTradeAverageSlip   string `json:"fromTradeAverageSlip" db:"from_trade_average_slip"`
	FromTradeCount         string `json:"fromTradeCount" db:"from_trade_count"`
	FromTradeFees          string `json:"fromTradeFees" db:"from_trade_fees"`
	FromTradeVolume        string `json:"fromTradeVolume" db:"from_trade_volume"`
	FromTradeVolumeUSD     string `json:"fromTradeVolumeUSD" db:"from_trade_volume_usd"`
	RunePriceUSD           string `json:"runePriceUSD" db:"rune_price_usd"`
	StartTime              string `json:"startTime" db:"start_time"`
	SynthMintAverageSlip   string `json:"synthMintAverageSlip" db:"synth_mint_average_slip"`
	SynthMintCount         string `json:"synthMintCount" db:"synth_mint_count"`
	SynthMintFees          string `json:"synthMintFees" db:"synth_mint_fees"`
	SynthMintVolume        string `json:"synthMintVolume" db:"synth_mint_volume"`
	SynthMintVolumeUSD     string `json:"synthMintVolumeUSD" db:"synth_mint_volume_usd"`
	SynthRedeemAverageSlip string `json:"synthRedeemAverageSlip" db:"synth_redeem_average_slip"`
	SynthRedeemCount       string `json:"synthRedeemCount" db:"synth_redeem_count"`
	SynthRedeemFees        string `json:"synthRedeemFees" db:"synth_redeem_fees"`
	SynthRedeemVolume      string `json:"synthRedeemVolume" db:"synth_redeem_volume"`
	SynthRedeemVolumeUSD   string `json:"synthRedeemVolumeUSD" db:"synth_redeem_volume_usd"`
	ToAssetAverageSlip     string `json:"toAssetAverageSlip" db:"to_asset_average_slip"`
	ToAssetCount           string `json:"toAssetCount" db:"to_asset_count"`
	ToAssetFees            string `json:"toAssetFees" db:"to_asset_fees"`
	ToAssetVolume          string `json:"toAssetVolume" db:"to_asset_volume"`
	ToAssetVolumeUSD       string `json:"toAssetVolumeUSD" db:"to_asset_volume_usd"`
	ToRuneAverageSlip      string `json:"toRuneAverageSlip" db:"to_rune_average_slip"`
	ToRuneCount            string `json:"toRuneCount" db:"to_rune_count"`
	ToRuneFees             string `json:"toRuneFees" db:"to_rune_fees"`
	ToRuneVolume           string `json:"toRuneVolume" db:"to_rune_volume"`
	ToRuneVolumeUSD        string `json:"toRuneVolumeUSD" db:"to_rune_volume_usd"`
	TotalCount             string `json:"totalCount" db:"total_count"`
	TotalFees              string `json:"totalFees" db:"total_fees"`
	TotalVolume            string `json:"totalVolume" db:"total_volume"`
	TotalVolumeUSD         string `json:"totalVolumeUSD" db:"total_volume_usd"`
}

// EarningInterval owns its Pools; they are written only together with a newly inserted parent.
type EarningInterval struct {
	ID                int64  `json:"-" db:"id"`
	AvgNodeCount      string `json:"avgNodeCount" db:"avg_node_count"`
	BlockRewards      string `json:"blockRewards" db:"block_rewards"`
	BondingEarnings   string `json:"bondingEarnings" db:"bonding_earnings"`
	Earnings          string `json:"earnings" db:"earnings"`
	EndTime           string `json:"endTime" db:"end_time"`
	LiquidityEarnings string `json:"liquidityEarnings" db:"liquidity_earnings"`
	LiquidityFees     string `json:"liquidityFees" db:"liquidity_fees"`
	RunePriceUSD      string `json:"runePriceUSD" db:"rune_price_usd"`
	StartTime         string `json:"startTime" db:"start_time"`
	Pools             []Pool `json:"pools" db:"-"`
}

type Pool struct {
	AssetLiquidityFees     string `json:"assetLiquidityFees" db:"asset_liquidity_fees"`
	Earnings               string `json:"earnings" db:"earnings"`
	Pool                   string `json:"pool" db:"pool"`
	Rewards                string `json:"rewards" db:"rewards"`
	RuneLiquidityFees      string `json:"runeLiquidityFees" db:"rune_liquidity_fees"`
	SaverEarning           string `json:"saverEarning" db:"saver_earning"`
	TotalLiquidityFeesRune string `json:"totalLiquidityFeesRune" db:"total_liquidity_fees_rune"`
}

type RunePoolInterval struct {
	ID        int64  `json:"-" db:"id"`
	Count     string `json:"count" db:"count"`
	EndTime   string `json:"endTime" db:"end_time"`
	StartTime string `json:"startTime" db:"start_time"`
	Units     string `json:"units" db:"units"`
}

// EarningRow is one row of the earnings/pools left join. Pool is nil when the
// interval has no matching child.
type EarningRow struct {
	Interval EarningInterval
	Pool     *Pool
}

// Batch is what one ingestion cycle fetched, one slice per series.
type Batch struct {
	Depth    []DepthInterval
	Swaps    []SwapsInterval
	Earnings []EarningInterval
	RunePool []RunePoolInterval
}

// Empty reports whether no series returned anything.
func (b Batch) Empty() bool {
	return len(b.Depth) == 0 && len(b.Swaps) == 0 && len(b.Earnings) == 0 && len(b.RunePool) == 0
}

// PersistResult counts newly inserted rows per series.
type PersistResult struct {
	Depth    int
	Swaps    int
	Earnings int
	Pools    int
	RunePool int
}

func (r PersistResult) Total() int {
	return r.Depth + r.Swaps + r.Earnings + r.RunePool
}
