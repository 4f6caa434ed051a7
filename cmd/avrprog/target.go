package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"avrprog-go/services/programmer"
)

// withTarget opens the programmer, enters programming mode, runs fn and
// leaves programming mode again.
func withTarget(ctx context.Context, fn func(*session) error) error {
	c, err := openConn()
	if err != nil {
		return err
	}
	defer c.Close()

	s := newSession(c)
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.leave(ctx); err != nil {
			log.WithError(err).Warn("disconnect failed")
		}
	}()
	return fn(s)
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the target and print its signature",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd.Context(), func(s *session) error {
			sig, err := s.signature(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("signature: % x\n", sig[:])
			return nil
		})
	},
}

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Print the programmer capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConn()
		if err != nil {
			return err
		}
		defer c.Close()
		caps, err := newSession(c).capabilities(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("capabilities: %#02x (tpi: %v)\n", caps, caps&programmer.CapTPI != 0)
		return nil
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Chip erase: flash, EEPROM and lock bits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd.Context(), func(s *session) error {
			if err := s.erase(cmd.Context()); err != nil {
				return err
			}
			log.Info("chip erased")
			return nil
		})
	},
}

var (
	memAddr   = uint32(0)
	memSize   = uint32(0)
	memOut    = ""
	memPage   = uint16(32)
	memVerify = false
)

// memoryFunc maps a memory name to its read and write functions.
func memoryFunc(name string) (read, write byte, err error) {
	switch name {
	case "flash":
		return programmer.FuncReadFlash, programmer.FuncWriteFlash, nil
	case "eeprom":
		return programmer.FuncReadEEPROM, programmer.FuncWriteEEPROM, nil
	}
	return 0, 0, fmt.Errorf("unknown memory %q (want flash or eeprom)", name)
}

var readCmd = &cobra.Command{
	Use:       "read <flash|eeprom>",
	Short:     "Read target memory to a file or as a hex dump",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"flash", "eeprom"},
	RunE: func(cmd *cobra.Command, args []string) error {
		fn, _, err := memoryFunc(args[0])
		if err != nil {
			return err
		}
		if memSize == 0 {
			return fmt.Errorf("--size is required")
		}
		buf := make([]byte, memSize)
		err = withTarget(cmd.Context(), func(s *session) error {
			return s.read(cmd.Context(), fn, memAddr, buf)
		})
		if err != nil {
			return err
		}
		if memOut == "" {
			fmt.Print(hex.Dump(buf))
			return nil
		}
		return os.WriteFile(memOut, buf, 0o644)
	},
}

var writeCmd = &cobra.Command{
	Use:       "write <flash|eeprom> <file>",
	Short:     "Write a raw binary file to target memory",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"flash", "eeprom"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rfn, _, err := memoryFunc(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withTarget(ctx, func(s *session) error {
			if rfn == programmer.FuncReadFlash {
				err = s.writeFlash(ctx, memAddr, data, memPage)
			} else {
				err = s.writeEEPROM(ctx, memAddr, data)
			}
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"memory": args[0], "addr": memAddr, "bytes": len(data)}).Info("written")
			if !memVerify {
				return nil
			}
			back := make([]byte, len(data))
			if err := s.read(ctx, rfn, memAddr, back); err != nil {
				return err
			}
			for i := range data {
				if back[i] != data[i] {
					return fmt.Errorf("verify failed at %#x: wrote %#02x, read %#02x", memAddr+uint32(i), data[i], back[i])
				}
			}
			log.Info("verified")
			return nil
		})
	},
}

var fuseCmd = &cobra.Command{
	Use:   "fuse",
	Short: "Read or write fuse and lock bytes",
}

var fuseReadCmd = &cobra.Command{
	Use:       "read <low|high|ext|lock>",
	Short:     "Read a fuse byte",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"low", "high", "ext", "lock"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd.Context(), func(s *session) error {
			v, err := s.readFuse(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %#02x\n", args[0], v)
			return nil
		})
	},
}

var fuseWriteCmd = &cobra.Command{
	Use:   "write <low|high|ext|lock> <value>",
	Short: "Write a fuse byte",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return fmt.Errorf("fuse value: %w", err)
		}
		return withTarget(cmd.Context(), func(s *session) error {
			if err := s.writeFuse(cmd.Context(), args[0], byte(v)); err != nil {
				return err
			}
			log.WithFields(log.Fields{"fuse": args[0], "value": fmt.Sprintf("%#02x", v)}).Info("fuse written")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(detectCmd, capsCmd, eraseCmd, readCmd, writeCmd, fuseCmd)
	fuseCmd.AddCommand(fuseReadCmd, fuseWriteCmd)

	for _, c := range []*cobra.Command{readCmd, writeCmd} {
		c.Flags().Uint32VarP(&memAddr, "addr", "a", 0, "start byte address")
	}
	readCmd.Flags().Uint32VarP(&memSize, "size", "n", 0, "bytes to read")
	readCmd.Flags().StringVarP(&memOut, "out", "o", "", "output file (hex dump to stdout if empty)")
	writeCmd.Flags().Uint16Var(&memPage, "page", 32, "flash page size in words, 0 for unpaged targets")
	writeCmd.Flags().BoolVar(&memVerify, "verify", false, "read back and compare after writing")
}
