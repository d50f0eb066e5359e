// Package mercure is a client for Mercure-style hubs that push topic-scoped
// events over a single long-lived connection.
//
// Subscribing is a two-step protocol. Subscribe and Unsubscribe only change
// the desired topic set; Connect compares it with the set the open connection
// was made for and reuses, reopens, closes or opens a connection as needed:
//
//	client, _ := mercure.New("https://example.com/.well-known/mercure", mercure.Options{
//		Opener: sse.NewDefaultOpener(sse.Dialer{}),
//	})
//	client.On("message", mercure.NewListener(func(e mercure.Event) { ... }))
//	client.Subscribe([]string{"/books/1"})
//	if _, err := client.Connect(ctx, transport.OpenOptions{}); err != nil { ... }
//
// Unsubscribe is the exception: it applies the change immediately.
//
// The client remembers the id of the last event it delivered and sends it as
// lastEventID on every later connection so the hub can replay what was missed.
package mercure
