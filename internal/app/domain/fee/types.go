// Package fee defines the core types of the creative gas fee engine.
//
// All monetary values are integer minor units: USD amounts are micro-USD
// (1e-6 USD) and token amounts are droplets (1e-8 of a whole token). Rates
// are expressed as micro-USD per whole token.
package fee

import "time"

const (
	// MicroUSD is the number of minor units in one USD.
	MicroUSD int64 = 1_000_000

	// TokenUnit is the number of droplets in one whole token.
	TokenUnit int64 = 100_000_000
)

// TransactionKind identifies the economic action being priced.
type TransactionKind string

const (
	KindStreamEarn        TransactionKind = "stream_earn"
	KindUploadContent     TransactionKind = "upload_content"
	KindMintNFT           TransactionKind = "mint_nft"
	KindTransferNFT       TransactionKind = "transfer_nft"
	KindSimpleTransfer    TransactionKind = "simple_transfer"
	KindTransferWithData  TransactionKind = "transfer_with_data"
	KindMultiSigTransfer  TransactionKind = "multisig_transfer"
	KindDexSwap           TransactionKind = "dex_swap"
	KindAddLiquidity      TransactionKind = "add_liquidity"
	KindRemoveLiquidity   TransactionKind = "remove_liquidity"
	KindStake             TransactionKind = "stake"
	KindUnstake           TransactionKind = "unstake"
	KindClaimRewards      TransactionKind = "claim_rewards"
	KindRegisterValidator TransactionKind = "register_validator"
	KindProposeBlock      TransactionKind = "propose_block"
	KindVote              TransactionKind = "vote"
	KindFollow            TransactionKind = "follow"
	KindComment           TransactionKind = "comment"
	KindLike              TransactionKind = "like"
	KindReview            TransactionKind = "review"
)

// ContentClass is the pricing class derived per request by the classifier.
type ContentClass string

const (
	ClassCultural       ContentClass = "cultural"
	ClassNormal         ContentClass = "normal"
	ClassPotentialAbuse ContentClass = "potential_abuse"
)

// UserTier is the discount tier of the payer.
type UserTier string

const (
	TierRegular            UserTier = "regular"
	TierPremium            UserTier = "premium"
	TierCreativeValidator  UserTier = "creative_validator"
	TierCommunityValidator UserTier = "community_validator"
	TierEconomicValidator  UserTier = "economic_validator"
)

// Quote is a point-in-time pricing result. The conversion rates are pinned
// so execution never silently re-prices after classification.
type Quote struct {
	Kind          TransactionKind `json:"kind"`
	Class         ContentClass    `json:"class"`
	Tier          UserTier        `json:"tier"`
	USDAmount     int64           `json:"usd_amount"`
	TokenAmount   int64           `json:"token_amount"`
	PrimaryRate   int64           `json:"primary_rate"`
	SecondaryRate int64           `json:"secondary_rate"`
	Sponsorable   bool            `json:"sponsorable"`
}

// Free reports whether the quoted fee is zero.
func (q Quote) Free() bool { return q.TokenAmount == 0 }

// SwapOutcome is the result of a DEX quote or execution, consumed
// transiently by the auto-swap path.
type SwapOutcome struct {
	TokenIn        string    `json:"token_in"`
	TokenOut       string    `json:"token_out"`
	AmountIn       int64     `json:"amount_in"`
	AmountOut      int64     `json:"amount_out"`
	PriceImpactBps int64     `json:"price_impact_bps"`
	QuotedAt       time.Time `json:"quoted_at"`
}

// DistributionResult splits a collected fee into its four destinations.
type DistributionResult struct {
	Validators     int64 `json:"validators"`
	Treasury       int64 `json:"treasury"`
	LiquidityPools int64 `json:"liquidity_pools"`
	Burn           int64 `json:"burn"`
	Total          int64 `json:"total"`
}

// Verify reports whether the four components sum exactly to the total.
func (d DistributionResult) Verify() bool {
	return d.Validators+d.Treasury+d.LiquidityPools+d.Burn == d.Total
}

// Receipt is returned to the caller after a successful collection.
type Receipt struct {
	ID              string             `json:"id"`
	Payer           string             `json:"payer"`
	Kind            TransactionKind    `json:"kind"`
	Class           ContentClass       `json:"class"`
	Tier            UserTier           `json:"tier"`
	USDAmount       int64              `json:"usd_amount"`
	TokenAmount     int64              `json:"token_amount"`
	PrimaryRate     int64              `json:"primary_rate"`
	SponsoredAmount int64              `json:"sponsored_amount"`
	SwappedAmount   int64              `json:"swapped_amount"`
	Distribution    DistributionResult `json:"distribution"`
	CreatedAt       time.Time          `json:"created_at"`
}
