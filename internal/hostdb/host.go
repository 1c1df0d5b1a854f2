package hostdb

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipelka/robotv-go/internal/hostapi"
	"github.com/pipelka/robotv-go/internal/tsdemux"
)

// Host implements hostapi.Host on top of a hostdb.DB, for integration tests
// and --dev-host mode (spec.md §6.5). Tuner acquisition is simulated: each
// Switch either opens DevStreamPath (a local MPEG-TS file, looped) if
// configured, or returns a device that never emits bytes — exercising the
// live streamer's signal-loss path without requiring real tuner hardware.
type Host struct {
	db *DB

	// DevStreamPath, if set, is looped as the broadcast-clock source for
	// every acquired device (used to drive the demux pipeline end to end
	// in --dev-host mode without a real tuner).
	DevStreamPath string

	channelsVersion   atomic.Uint64
	timersVersion     atomic.Uint64
	recordingsVersion atomic.Uint64
}

// New wraps db as a hostapi.Host.
func New(db *DB) *Host {
	return &Host{db: db}
}

// Switch implements hostapi.Host.
func (h *Host) Switch(ctx context.Context, uid hostapi.UID) (hostapi.Device, error) {
	var row ChannelModel
	if err := h.db.First(&row, "uid = ?", uint64(uid)).Error; err != nil {
		return nil, &hostapi.TunerError{Failure: hostapi.FailureError, Channel: uid, Cause: err}
	}

	if row.Encrypted && !hasUsableCA(row.CAIDsCSV) {
		return nil, &hostapi.TunerError{Failure: hostapi.FailureEncrypted, Channel: uid}
	}

	dev := &devDevice{descriptor: fmt.Sprintf("dev-host/%d", uid)}
	if h.DevStreamPath != "" {
		dev.sourcePath = h.DevStreamPath
		dev.start()
	}
	return dev, nil
}

func hasUsableCA(csv string) bool {
	for _, f := range strings.Split(csv, ",") {
		if id, err := strconv.Atoi(strings.TrimSpace(f)); err == nil && id >= hostapi.CaEncryptedMin {
			return true
		}
	}
	return false
}

// Channel implements hostapi.Host.
func (h *Host) Channel(uid hostapi.UID) (hostapi.Channel, bool) {
	var row ChannelModel
	if err := h.db.First(&row, "uid = ?", uint64(uid)).Error; err != nil {
		return hostapi.Channel{}, false
	}
	return hostapi.Channel{
		UID:       hostapi.UID(row.UID),
		Name:      row.Name,
		CAIDs:     parseCAIDs(row.CAIDsCSV),
		Encrypted: row.Encrypted,
	}, true
}

func parseCAIDs(csv string) []int {
	if csv == "" {
		return nil
	}
	var out []int
	for _, f := range strings.Split(csv, ",") {
		if id, err := strconv.Atoi(strings.TrimSpace(f)); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// ChannelStreamInfo implements hostapi.Host, deriving a StreamBundle from
// the channel's known PSI layout row set.
func (h *Host) ChannelStreamInfo(uid hostapi.UID) (*tsdemux.StreamBundle, bool) {
	var rows []StreamModel
	if err := h.db.Where("channel_uid = ?", uint64(uid)).Order("id").Find(&rows).Error; err != nil || len(rows) == 0 {
		return nil, false
	}

	bundle := tsdemux.NewStreamBundle()
	for _, r := range rows {
		codec := tsdemux.CodecType(r.CodecType)
		bundle.Set(tsdemux.StreamInfo{
			PID:      r.PID,
			Class:    codec.ContentClass(),
			Codec:    codec,
			Language: r.Language,
		})
	}
	return bundle, true
}

// StateVersion implements hostapi.Host.
func (h *Host) StateVersion() (channels, timers, recordings uint64) {
	return h.channelsVersion.Load(), h.timersVersion.Load(), h.recordingsVersion.Load()
}

// Timers implements hostapi.Host.
func (h *Host) Timers() []hostapi.Timer {
	var rows []TimerModel
	if err := h.db.Find(&rows).Error; err != nil {
		return nil
	}
	out := make([]hostapi.Timer, len(rows))
	for i, r := range rows {
		out[i] = hostapi.Timer{ID: r.ID, Channel: hostapi.UID(r.ChannelUID), Active: r.Active}
	}
	return out
}

// Recordings implements hostapi.Host.
func (h *Host) Recordings() []hostapi.Recording {
	var rows []RecordingModel
	if err := h.db.Find(&rows).Error; err != nil {
		return nil
	}
	out := make([]hostapi.Recording, len(rows))
	for i, r := range rows {
		out[i] = hostapi.Recording{ID: r.ID, Channel: hostapi.UID(r.ChannelUID), Title: r.Title}
	}
	return out
}

// PutChannel upserts a channel row and bumps the channels state version, for
// test setup and dev-mode seeding.
func (h *Host) PutChannel(ch hostapi.Channel) error {
	csv := make([]string, len(ch.CAIDs))
	for i, id := range ch.CAIDs {
		csv[i] = strconv.Itoa(id)
	}
	row := ChannelModel{UID: uint64(ch.UID), Name: ch.Name, CAIDsCSV: strings.Join(csv, ","), Encrypted: ch.Encrypted}
	if err := h.db.Save(&row).Error; err != nil {
		return err
	}
	h.channelsVersion.Add(1)
	return nil
}

// devDevice is the --dev-host stand-in for a real tuner: it optionally
// loops a local MPEG-TS file as its broadcast-clock source so the live
// streamer's full pipeline can be exercised without hardware.
type devDevice struct {
	descriptor string
	sourcePath string

	mu       sync.Mutex
	receiver hostapi.ReceiveFunc
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func (d *devDevice) Descriptor() string { return d.descriptor }

func (d *devDevice) SetReceiver(fn hostapi.ReceiveFunc) {
	d.mu.Lock()
	d.receiver = fn
	d.mu.Unlock()
}

func (d *devDevice) SignalInfo() (string, uint32, uint32) {
	if d.sourcePath == "" {
		return "none", 0, 0
	}
	const full16 = 0xFFFF << 16
	return "locked", full16, full16
}

func (d *devDevice) Detach() {
	d.mu.Lock()
	stopCh := d.stopCh
	d.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	d.wg.Wait()
}

func (d *devDevice) start() {
	d.mu.Lock()
	d.stopCh = make(chan struct{})
	stopCh := d.stopCh
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loopFile(stopCh)
	}()
}

// loopFile re-reads sourcePath from the beginning whenever it reaches EOF,
// pacing emission at roughly real-time TS bitrate granularity (188 bytes
// per tick) so downstream PTS handling behaves realistically.
func (d *devDevice) loopFile(stopCh chan struct{}) {
	const packetSize = 188
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		f, err := os.Open(d.sourcePath)
		if err != nil {
			return
		}

		buf := make([]byte, packetSize)
		for {
			select {
			case <-stopCh:
				f.Close()
				return
			case <-ticker.C:
			}

			n, err := f.Read(buf)
			if n > 0 {
				d.mu.Lock()
				fn := d.receiver
				d.mu.Unlock()
				if fn != nil {
					fn(append([]byte(nil), buf[:n]...))
				}
			}
			if err != nil {
				break
			}
		}
		f.Close()

		select {
		case <-stopCh:
			return
		default:
		}
	}
}
