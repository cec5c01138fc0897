package topics

const (
	// Wagers
	WagerSettled = "wager_settled"

	// Redis Pub/Sub
	WagerSettlementsBroadcast = "wager_settlements_broadcast"
)
