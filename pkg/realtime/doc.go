// Package realtime owns the connection between speaky and the speech-to-speech
// provider: a peer connection carrying the assistant's audio plus a data channel
// over which structured JSON events flow in both directions.
//
// A Session moves through a linear lifecycle:
//
//	idle → connecting → open → closed
//
// Start negotiates the connection and returns as soon as the local and remote
// descriptions are applied. The session becomes open when the data channel
// reports open; at that point the event log is cleared and OnOpen hooks run.
// Stop, or the remote side closing the channel, moves the session to closed.
// There is no automatic reconnect.
//
// Every event sent or received is appended to a bounded, newest-first EventLog.
// Outbound events are stamped with a unique event_id and a timestamp when absent.
//
// Example usage:
//
//	sig := realtime.NewEphemeralSignaler(brokerURL, providerURL, model)
//	session := realtime.NewSession(realtime.NewWebRTCDialer(sig))
//	session.Subscribe(func(ev realtime.Event) {
//	    log.Println("received", ev.Type)
//	})
//	if err := session.Start(ctx); err != nil {
//	    return err
//	}
//	defer session.Stop()
package realtime
