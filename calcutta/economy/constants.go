package economy

import "time"

// Auction timing
const (
	// DefaultItemDuration is the countdown granted to a freshly activated item.
	DefaultItemDuration = 15 * time.Second

	// ExtensionThreshold is the anti-snipe window: an accepted bid landing
	// inside it pushes the deadline back out to now + ExtensionThreshold.
	ExtensionThreshold = 10 * time.Second

	// MaxItemDuration caps extension chains so one item can never run longer
	// than this past its activation.
	MaxItemDuration = 5 * time.Minute
)

// Bidding
const (
	MinBidIncrement = 100 // cents
)

// Transactions
const (
	DefaultTxTimeout = 30 * time.Second
)
