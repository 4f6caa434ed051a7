package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"

	"avrprog-go/services/programmer"
)

const (
	usbaspVID gousb.ID = 0x16c0
	usbaspPID gousb.ID = 0x05dc
)

const (
	requestIn  = gousb.ControlIn | gousb.ControlVendor | gousb.ControlDevice
	requestOut = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice
)

// usbConn sends each command as one vendor control transfer: the function
// code is bRequest, header bytes 2..5 are wValue and wIndex, and the data
// phase is the transfer payload.
type usbConn struct {
	ctx *gousb.Context
	dev *gousb.Device
}

func openUSB() (*usbConn, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(usbaspVID, usbaspPID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open usb programmer: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, errors.New("no USBasp-compatible programmer found")
	}
	dev.ControlTimeout = 2 * time.Second
	log.WithFields(log.Fields{"vid": usbaspVID, "pid": usbaspPID}).Debug("usb programmer opened")
	return &usbConn{ctx: ctx, dev: dev}, nil
}

func (u *usbConn) control(rType uint8, h programmer.Header, p []byte) (int, error) {
	return u.dev.Control(
		rType,
		h.Func(),
		binary.LittleEndian.Uint16(h[2:4]),
		binary.LittleEndian.Uint16(h[4:6]),
		p,
	)
}

func (u *usbConn) Command(_ context.Context, h programmer.Header) ([]byte, error) {
	var buf [4]byte
	n, err := u.control(requestIn, h, buf[:])
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), buf[:n]...), nil
}

func (u *usbConn) ReadBlock(_ context.Context, h programmer.Header, p []byte) (int, error) {
	return u.control(requestIn, h, p)
}

func (u *usbConn) WriteBlock(_ context.Context, h programmer.Header, p []byte) error {
	n, err := u.control(requestOut, h, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short usb write: %d of %d bytes", n, len(p))
	}
	return nil
}

func (u *usbConn) Close() error {
	err := u.dev.Close()
	if cerr := u.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}
