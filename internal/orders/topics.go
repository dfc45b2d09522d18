package orders

const (
	TopicOrderStatus    = "order.status"
	TopicStockMovement  = "inventory.movement"
	TopicLowStockAlerts = "inventory.alerts"
)

// PartitionKey keeps all events of one order (or one product) in order.
func PartitionKey(id string) []byte { return []byte(id) }
