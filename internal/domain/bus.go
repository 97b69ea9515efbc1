package domain

import "context"

// MessageBus routes messages between channels and the dispatcher.
// Publish may block briefly when the bus is saturated; the context
// bounds that wait.
type MessageBus interface {
	Publish(ctx context.Context, msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
