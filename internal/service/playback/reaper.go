// Package playback tracks audio sources on a device and releases them once they
// finish. The device API has no completion callback, so finished sources are
// found by polling once per tick.
package playback

// SourceID identifies a playing source on a Device.
type SourceID uint32

// BufferID identifies an uploaded sample buffer on a Device.
type BufferID uint32

// Device is the audio backend. Implementations are not safe for concurrent use;
// every call happens on the goroutine that owns the device.
type Device interface {
	SourceStopped(src SourceID) bool
	DeleteSource(src SourceID)
	DeleteBuffer(buf BufferID)
}

type handlePair struct {
	source SourceID
	buffer BufferID
}

// Reaper releases source/buffer pairs that stopped playing.
type Reaper struct {
	device Device
	active []handlePair
}

// NewReaper returns a reaper bound to device.
func NewReaper(device Device) *Reaper {
	return &Reaper{device: device}
}

// Track registers a playing source and the buffer it reads from.
func (r *Reaper) Track(src SourceID, buf BufferID) {
	r.active = append(r.active, handlePair{source: src, buffer: buf})
}

// Active returns the number of tracked pairs.
func (r *Reaper) Active() int { return len(r.active) }

// Tick releases every stopped pair and returns how many were released.
func (r *Reaper) Tick() int {
	kept := r.active[:0]
	released := 0
	for _, p := range r.active {
		if !r.device.SourceStopped(p.source) {
			kept = append(kept, p)
			continue
		}
		r.device.DeleteSource(p.source)
		r.device.DeleteBuffer(p.buffer)
		released++
	}
	for i := len(kept); i < len(r.active); i++ {
		r.active[i] = handlePair{}
	}
	r.active = kept
	return released
}
