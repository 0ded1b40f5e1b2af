//go:build !linux

package ble

import (
	"context"
	"errors"
)

var errHCIUnsupported = errors.New("ble: hci backend requires linux")

// HCIPeripheral is only available on Linux.
type HCIPeripheral struct{}

func NewHCIPeripheral(int) *HCIPeripheral { return &HCIPeripheral{} }

func (*HCIPeripheral) Enable() error                                  { return errHCIUnsupported }
func (*HCIPeripheral) Register(*Profile, Handlers) error              { return errHCIUnsupported }
func (*HCIPeripheral) Advertise(context.Context, Advertisement) error { return errHCIUnsupported }
func (*HCIPeripheral) Notify(CharID, []byte) error                    { return errHCIUnsupported }
func (*HCIPeripheral) Close() error                                   { return nil }
