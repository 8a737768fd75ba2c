package orders

const TopicOrderPlaced = "order.placed"
