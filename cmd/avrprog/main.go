// Command avrprog drives an AVR high-voltage programmer from a host, or turns
// a Linux board into one.
package main

import (
	"context"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"avrprog-go/errcode"
)

var (
	flagPort    = ""
	flagBaud    = uint32(115200)
	flagUSB     = false
	flagBoard   = "rpi"
	flagVerbose = false
	flagSCK     = uint8(0)
)

var rootCmd = &cobra.Command{
	Use:           "avrprog",
	Short:         "AVR high-voltage programmer tool",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagPort, "port", "p", "", "serial device of the programmer link")
	pf.Uint32VarP(&flagBaud, "baud", "b", 115200, "link baud rate")
	pf.BoolVar(&flagUSB, "usb", false, "talk to a USBasp-compatible programmer over USB instead of a serial link")
	pf.StringVar(&flagBoard, "board", "rpi", "embedded board config used by serve")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.Uint8Var(&flagSCK, "sck", 0, "clock option 0..12 (0 = auto)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithField("code", errcode.MapDriverErr(err)).Error(err)
		os.Exit(1)
	}
}
