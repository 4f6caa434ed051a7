package main

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"avrprog-go/bus"
	"avrprog-go/drivers/avrhv"
	"avrprog-go/errcode"
	"avrprog-go/services/config"
	"avrprog-go/services/hal"
	"avrprog-go/services/hal/sim"
	"avrprog-go/services/link"
	"avrprog-go/services/programmer"
	"avrprog-go/types"
)

var simVariant = "full_bus"

// serveLink answers the programmer link on lc until ctx ends, logging each
// status change.
func serveLink(ctx context.Context, pins avrhv.Pins, cfg avrhv.Config, lc types.LinkConfig) error {
	l, err := hal.OpenLink(lc)
	if err != nil {
		return fmt.Errorf("open link %s: %w", lc.Device, err)
	}
	defer l.Close()
	defer pins.Release()

	b := bus.NewBus(4)
	go logStatus(ctx, b.NewConnection("log"))

	prog := programmer.New(avrhv.New(pins, avrhv.SystemClock{}, cfg), nil)
	srv := link.NewServer(l, prog, b.NewConnection("link"))
	log.WithFields(log.Fields{"device": lc.Device, "baud": lc.Baud}).Info("serving programmer link")

	err = srv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logStatus(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(link.TopicStatus)
	defer conn.Unsubscribe(sub)

	var last types.ProgrammerStatus
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			st, ok := msg.Payload.(types.ProgrammerStatus)
			if !ok {
				continue
			}
			e := log.WithFields(log.Fields{
				"device":    st.Device,
				"state":     st.State,
				"address":   st.Address,
				"remaining": st.Remaining,
			})
			if st.LastCode != "" && st.LastCode != string(errcode.OK) {
				e = e.WithField("code", st.LastCode)
			}
			if st.Device != last.Device || st.State != last.State || st.LastCode != last.LastCode {
				e.Info("programmer status")
			} else {
				e.Debug("programmer status")
			}
			last = st
		}
	}
}

func linkConfig(lc types.LinkConfig) types.LinkConfig {
	if flagPort != "" {
		lc.Device = flagPort
	}
	if flagBaud != 0 {
		lc.Baud = flagBaud
	}
	return lc
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this board as a programmer on its GPIO lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := config.Board(flagBoard)
		if err != nil {
			return err
		}
		lines, err := hal.BoardLines(hal.DefaultPinFactory(), hal.DefaultI2CFactory(), bc)
		if err != nil {
			log.WithFields(log.Fields{"board": bc.Name, "code": errcode.MapDriverErr(err)}).Error("binding programming lines")
			return err
		}
		log.WithField("board", bc.Name).Info("programming lines bound")
		err = serveLink(cmd.Context(), lines, config.EngineConfig(bc.Detect), linkConfig(bc.Link))
		if lerr := lines.Err(); lerr != nil {
			log.WithFields(log.Fields{"board": bc.Name, "code": errcode.MapDriverErr(lerr)}).Warn("pin error while serving: ", lerr)
		}
		return err
	},
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Serve a simulated target over a serial device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, ok := sim.ParseVariant(simVariant)
		if !ok {
			return fmt.Errorf("unknown variant %q", simVariant)
		}
		if flagPort == "" {
			return errors.New("--port is required")
		}
		log.WithField("variant", v).Info("simulated target ready")
		return serveLink(cmd.Context(), sim.New(v), avrhv.DefaultConfig(), linkConfig(types.LinkConfig{}))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, simCmd)
	simCmd.Flags().StringVar(&simVariant, "variant", "full_bus", "full_bus, short_bus, serial_hv or absent")
}
