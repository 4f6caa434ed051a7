package heartbeat

import (
	"context"
	"runtime"
	"time"

	"avrprog-go/bus"
	"avrprog-go/services/link"
	"avrprog-go/types"
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")

type Service struct {
	last types.ProgrammerStatus
	seen bool
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	stSub := conn.Subscribe(link.TopicStatus)
	defer conn.Unsubscribe(stSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick, status and config changes
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case t := <-tick.C:
			s.print(t)
		case msg := <-stSub.Channel():
			if st, ok := msg.Payload.(types.ProgrammerStatus); ok {
				s.last, s.seen = st, true
			}
		case msg := <-cfgSub.Channel():
			// Change tick interval if needed
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"]; ok {
					if interval, ok := iv.(float64); ok && interval > 0 {
						tick.Reset(time.Duration(interval) * time.Second)
						println("Info:", "Heartbeat interval set to", int(interval), "seconds")
					}
				}
			}
		}
	}
}

func (s *Service) print(t time.Time) {
	if !s.seen {
		println("Info:", t.Format("15:04:05"), "Heartbeat", "programmer: no status")
		return
	}
	st := s.last
	println("Info:", t.Format("15:04:05"), "Heartbeat",
		"device:", st.Device,
		"state:", st.State,
		"addr:", st.Address,
		"remaining:", st.Remaining,
		"last:", st.LastCode,
	)
	printMem()
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
