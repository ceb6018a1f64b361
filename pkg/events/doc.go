/*
Package events provides an in-memory broker for convergence events.

The controller publishes one event per observable step of a cycle: the
cycle starting and ending, plugins enabled, each peer skipped or joined,
join failures, the password reset and the HA policy outcome. Subscribers
receive every event published after they subscribe, in publish order.

Publishing is synchronous and never blocks. Each subscriber owns a
buffered channel; when it is full the event is dropped for that subscriber
only and counted in Dropped. A nil *Broker accepts and discards events, so
components can publish unconditionally.

	broker := events.NewBroker()
	sub := broker.Subscribe(0)
	go func() {
		for e := range sub {
			fmt.Println(e.Type, e.Peer, e.Message)
		}
	}()
	// ...
	broker.Close()
*/
package events
