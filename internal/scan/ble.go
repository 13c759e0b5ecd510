package scan

import (
	"fmt"
	"sync/atomic"
	"time"

	"beacon-tracker.klederson.com/internal/logging"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// BLESource scans for BLE advertisements on the default adapter.
type BLESource struct {
	adapter *bluetooth.Adapter
	name    string
	running atomic.Bool
	log     *logrus.Entry
}

// NewBLESource creates a source for the named adapter (used for logging;
// tinygo always drives the default adapter).
func NewBLESource(adapterName string) *BLESource {
	return &BLESource{
		adapter: bluetooth.DefaultAdapter,
		name:    adapterName,
		log:     logging.NewLogger("ble").WithField("adapter", adapterName),
	}
}

// Start enables the adapter and begins scanning in a goroutine.
func (s *BLESource) Start(h Handler) error {
	if err := s.adapter.Enable(); err != nil {
		h.HandleRadioState(RadioOther)
		return fmt.Errorf("failed to enable BLE adapter %s: %w (try running with sudo or setcap cap_net_admin+ep)", s.name, err)
	}
	h.HandleRadioState(RadioPoweredOn)

	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("BLE scan already running on %s", s.name)
	}
	s.log.Info("BLE scan starting")

	go func() {
		err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !s.running.Load() {
				return
			}
			// Some stacks report 0 when RSSI is unavailable.
			h.HandleScanEvent(Event{
				Name:    result.LocalName(),
				RSSI:    result.RSSI,
				HasRSSI: result.RSSI != 0,
				Time:    time.Now(),
			})
		})
		if s.running.Swap(false) {
			if err == nil {
				err = fmt.Errorf("BLE scan on %s ended unexpectedly", s.name)
			}
			h.HandleScanError(err)
		}
	}()

	return nil
}

// Stop halts the BLE scan.
func (s *BLESource) Stop() {
	if !s.running.Swap(false) {
		return
	}
	if err := s.adapter.StopScan(); err != nil {
		s.log.WithError(err).Warn("stopping BLE scan")
	}
	s.log.Info("BLE scan stopped")
}
