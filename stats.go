package driverbase

import "time"

// Status carries the driver's monotonic byte counters. GoodRx covers bytes
// returned as part of accepted frames, including frames drained but skipped
// under extract-last mode; BadRx covers bytes discarded as garbage; Tx covers
// bytes written through the driver. Stamp is the time of the last change.
type Status struct {
	GoodRx uint64
	BadRx  uint64
	Tx     uint64
	Stamp  time.Time
}

func (d *Driver) Status() Status { return d.stats }

// ResetStatus zeroes the counters and restamps.
func (d *Driver) ResetStatus() {
	d.stats = Status{Stamp: time.Now()}
}

func (d *Driver) addGoodRx(n int) {
	d.stats.GoodRx += uint64(n)
	d.stats.Stamp = time.Now()
}

func (d *Driver) addBadRx(n int) {
	d.stats.BadRx += uint64(n)
	d.stats.Stamp = time.Now()
}

func (d *Driver) addTx(n int) {
	d.stats.Tx += uint64(n)
	d.stats.Stamp = time.Now()
}
