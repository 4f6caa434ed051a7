//go:build rp2040 || rp2350

package main

import (
	"context"
	"time"

	"avrprog-go/bus"
	"avrprog-go/drivers/avrhv"
	"avrprog-go/services/config"
	"avrprog-go/services/hal"
	"avrprog-go/services/heartbeat"
	"avrprog-go/services/link"
	"avrprog-go/services/programmer"
)

// device selects the embedded board config; override with
// -ldflags "-X main.device=<id>".
var device = "pico"

func main() {
	time.Sleep(2 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, device)

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)

	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	(&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	bc, err := config.Board(device)
	if err != nil {
		halt("[main] board config:", err)
	}

	println("[main] binding programming lines for", bc.Name, "…")
	lines, err := hal.BoardLines(hal.DefaultPinFactory(), hal.DefaultI2CFactory(), bc)
	if err != nil {
		halt("[main] lines:", err)
	}
	eng := avrhv.New(lines, avrhv.SystemClock{}, config.EngineConfig(bc.Detect))
	prog := programmer.New(eng, nil)

	println("[main] opening link", bc.Link.Device, "…")
	l, err := hal.OpenLink(bc.Link)
	if err != nil {
		halt("[main] link:", err)
	}
	defer l.Close()

	srv := link.NewServer(l, prog, b.NewConnection("link"))
	for {
		if err := srv.Run(ctx); err != nil {
			println("[main] link stopped:", err.Error())
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func halt(msg string, err error) {
	for {
		println(msg, err.Error())
		time.Sleep(5 * time.Second)
	}
}
