// Package classifier maps transaction kinds to pricing classes. Cultural
// content is discounted, normal traffic is neutral, and high-frequency
// activity is escalated to the abuse class.
package classifier

import "github.com/dujyo/gasengine/internal/app/domain/fee"

// Config declares the kind -> class map and the frequency thresholds that
// force the abuse class.
type Config struct {
	Classes map[fee.TransactionKind]fee.ContentClass `yaml:"classes"`

	// AbuseProneKinds escalate at the lower threshold.
	AbuseProneKinds []fee.TransactionKind `yaml:"abuse_prone_kinds"`

	// GeneralThreshold forces the abuse class for any kind.
	GeneralThreshold int64 `yaml:"general_threshold"`

	// AbuseProneThreshold forces the abuse class for abuse-prone kinds.
	AbuseProneThreshold int64 `yaml:"abuse_prone_threshold"`
}

// DefaultConfig returns the platform class map: cultural content is
// discounted, financial traffic is neutral.
func DefaultConfig() Config {
	return Config{
		Classes: map[fee.TransactionKind]fee.ContentClass{
			fee.KindUploadContent: fee.ClassCultural,
			fee.KindMintNFT:       fee.ClassCultural,
			fee.KindStreamEarn:    fee.ClassCultural,
			fee.KindComment:       fee.ClassCultural,
			fee.KindReview:        fee.ClassCultural,

			fee.KindSimpleTransfer: fee.ClassNormal,
			fee.KindDexSwap:        fee.ClassNormal,
			fee.KindStake:          fee.ClassNormal,
			fee.KindUnstake:        fee.ClassNormal,
		},
		AbuseProneKinds:     []fee.TransactionKind{fee.KindUploadContent, fee.KindMintNFT, fee.KindSimpleTransfer},
		GeneralThreshold:    100,
		AbuseProneThreshold: 50,
	}
}

// Classifier derives the content class per request. It is a pure lookup with
// no side effects and no failure mode.
type Classifier struct {
	classes             map[fee.TransactionKind]fee.ContentClass
	abuseProne          map[fee.TransactionKind]bool
	generalThreshold    int64
	abuseProneThreshold int64
}

// New builds a classifier. Zero thresholds fall back to the defaults.
func New(cfg Config) *Classifier {
	defaults := DefaultConfig()
	if cfg.Classes == nil {
		cfg.Classes = defaults.Classes
	}
	if cfg.AbuseProneKinds == nil {
		cfg.AbuseProneKinds = defaults.AbuseProneKinds
	}
	if cfg.GeneralThreshold <= 0 {
		cfg.GeneralThreshold = defaults.GeneralThreshold
	}
	if cfg.AbuseProneThreshold <= 0 {
		cfg.AbuseProneThreshold = defaults.AbuseProneThreshold
	}

	abuseProne := make(map[fee.TransactionKind]bool, len(cfg.AbuseProneKinds))
	for _, kind := range cfg.AbuseProneKinds {
		abuseProne[kind] = true
	}
	return &Classifier{
		classes:             cfg.Classes,
		abuseProne:          abuseProne,
		generalThreshold:    cfg.GeneralThreshold,
		abuseProneThreshold: cfg.AbuseProneThreshold,
	}
}

// Classify returns the pricing class for a kind given the observed recent
// frequency. Unknown kinds default to the normal class; this is a policy
// default, not an error.
func (c *Classifier) Classify(kind fee.TransactionKind, countInWindow int64) fee.ContentClass {
	if countInWindow > c.generalThreshold {
		return fee.ClassPotentialAbuse
	}
	if c.abuseProne[kind] && countInWindow > c.abuseProneThreshold {
		return fee.ClassPotentialAbuse
	}
	if class, ok := c.classes[kind]; ok {
		return class
	}
	return fee.ClassNormal
}
