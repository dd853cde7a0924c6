package learngate

import (
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Tier is re-exported from plan package.
type Tier = plan.Tier

// Re-export Money constructors
var (
	KES  = types.KES
	Zero = types.Zero
	Sum  = types.Sum
)

// Re-export tiers
const (
	TierFree    = plan.TierFree
	TierPremium = plan.TierPremium
)
