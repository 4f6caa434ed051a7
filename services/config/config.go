package config

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"avrprog-go/bus"
	"avrprog-go/drivers/avrhv"
	"avrprog-go/types"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	keyBoard     = "board"
)

type ctxKey string

// CtxDeviceKey is the context key carrying the device (board) ID.
const CtxDeviceKey ctxKey = "device"

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// DecodeJSON decodes src ([]byte, string or an already-decoded JSON value
// such as a bus payload) into dst.
func DecodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func lookup(device string) (map[string]any, error) {
	if device == "" {
		return nil, errors.New("missing device ID")
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return nil, errors.New("no embedded config for device: " + device)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.New("embedded config is not a JSON object")
	}
	return m, nil
}

// Board returns the board section of a device's embedded config.
func Board(device string) (types.BoardConfig, error) {
	var bc types.BoardConfig
	m, err := lookup(device)
	if err != nil {
		return bc, err
	}
	raw, ok := m[keyBoard]
	if !ok {
		return bc, errors.New("no board section for device: " + device)
	}
	if err := DecodeJSON(raw, &bc); err != nil {
		return bc, err
	}
	if bc.Name == "" {
		bc.Name = device
	}
	return bc, nil
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded data and publishes it as retained messages.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	m, err := lookup(device)
	if err != nil {
		return err
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config] publish failed:", err.Error())
		}
	}()
}

// EngineConfig converts a board's detection settings to engine config.
// Zero values fall back to the engine defaults.
func EngineConfig(d types.DetectConfig) avrhv.Config {
	return avrhv.Config{
		Signature:    byte(d.Signature),
		PollInterval: time.Duration(d.PollIntervalUS) * time.Microsecond,
		PollTimeout:  time.Duration(d.PollTimeoutMS) * time.Millisecond,
		BusyTimeout:  time.Duration(d.BusyTimeoutMS) * time.Millisecond,
	}
}
