/*
Package observability broadcasts operational events for a running pipeline:
epoch commits, snapshot completion, node errors and termination, and
checkpoint writes. It is a thin in-memory pub/sub bus, not a metrics or
logging system — pkg/metrics and pkg/log cover those.

# Usage

Creating and starting a broker:

	broker := observability.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("[%s] %s: %s\n", event.Type, event.Node, event.Message)
		}
	}()

Publishing:

	broker.Publish(&observability.Event{
		Type:     observability.EventEpochCommitted,
		Pipeline: "orders-pipeline",
		Node:     "sink_customer_totals",
		Message:  "epoch 42 committed",
	})

# Delivery semantics

Publish never blocks on a subscriber: each subscriber has its own buffered
channel, and a full buffer causes that subscriber (and only that one) to
miss the event rather than stall the publisher. This trades guaranteed
delivery for a promise that no pipeline node ever waits on event consumers;
a slow or absent subscriber (e.g. no CLI watching `weir run`) must never
affect dataflow throughput.

There is no event history or replay: a subscriber only sees events
published after it subscribes.
*/
package observability
