package test

import (
	"context"
	"testing"
	"time"

	"swap-messenger/client"
	"swap-messenger/message"
	"swap-messenger/server"
)

// Round trip of a single call through an in-process relay: taker → relay →
// maker handler → relay → taker.
func BenchmarkCallRoundTrip(b *testing.B) {
	relay := server.NewRelay(verifier, indexerAddress, nil)
	url, err := relay.Start("127.0.0.1:0")
	if err != nil {
		b.Fatal(err)
	}
	defer relay.Shutdown(3 * time.Second)

	ctx := context.Background()

	var maker *client.Messenger
	maker, err = client.NewMessenger(client.Config{
		URL:         url,
		Address:     makerAddress,
		Signer:      signerFor(makerAddress),
		NoReconnect: true,
		Methods: map[string]client.MethodHandler{
			"ping": func(sender string, req *message.RPCRequest) {
				resp, _ := message.NewResponse(req.ID, "pong")
				maker.Reply(sender, resp)
			},
		},
	})
	if err != nil {
		b.Fatal(err)
	}
	if err := maker.Connect(ctx); err != nil {
		b.Fatal(err)
	}
	defer maker.Disconnect()

	taker, err := client.NewMessenger(client.Config{
		URL:         url,
		Address:     takerAddress,
		Signer:      signerFor(takerAddress),
		NoReconnect: true,
		Timeout:     5 * time.Second,
	})
	if err != nil {
		b.Fatal(err)
	}
	if err := taker.Connect(ctx); err != nil {
		b.Fatal(err)
	}
	defer taker.Disconnect()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := taker.CallWait(ctx, makerAddress, message.NewRequest("ping", nil)); err != nil {
			b.Fatal(err)
		}
	}
}
