package logic

type linkKey struct {
	from  LinkState
	event LinkEvent
}

var linkTransitions = map[linkKey]LinkState{
	{LinkDisconnected, EventAttempt}:       LinkConnecting,
	{LinkDisconnected, EventFallback}:      LinkDemo,
	{LinkDisconnected, EventUserReconnect}: LinkConnecting,
	{LinkConnecting, EventSuccess}:         LinkConnected,
	{LinkConnecting, EventExhausted}:       LinkDemo,
	{LinkConnecting, EventFailed}:          LinkDisconnected,
	{LinkConnected, EventLinkLost}:         LinkDisconnected,
	{LinkConnected, EventUserReconnect}:    LinkConnecting,
	{LinkDemo, EventUserReconnect}:         LinkConnecting,
}

// NextLinkState returns the state reached from "from" on event.
// ok is false when the event is not valid in that state (for example a
// reconnect request while a connect attempt is already running); the
// caller must then leave the state unchanged.
func NextLinkState(from LinkState, event LinkEvent) (next LinkState, ok bool) {
	next, ok = linkTransitions[linkKey{from, event}]
	if !ok {
		return from, false
	}
	return next, true
}
