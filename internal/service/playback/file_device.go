package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Clip is one chunk of 16-bit little-endian PCM.
type Clip struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Data) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

type fileSource struct {
	buffer BufferID
	ends   time.Time
}

// FileDevice "plays" clips by writing them to WAV files and treats a source as
// stopped once the clip's duration has elapsed.
type FileDevice struct {
	dir     string
	now     func() time.Time
	nextID  uint32
	buffers map[BufferID]Clip
	sources map[SourceID]fileSource
	logger  *zap.Logger
}

// NewFileDevice writes clips under dir. An empty dir keeps clips in memory only.
func NewFileDevice(dir string, logger *zap.Logger) *FileDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileDevice{
		dir:     dir,
		now:     time.Now,
		buffers: make(map[BufferID]Clip),
		sources: make(map[SourceID]fileSource),
		logger:  logger.Named("device"),
	}
}

// Play uploads clip into a buffer, starts a source on it and returns both handles.
func (d *FileDevice) Play(clip Clip, label string) (SourceID, BufferID, error) {
	d.nextID++
	buf := BufferID(d.nextID)
	d.nextID++
	src := SourceID(d.nextID)

	if d.dir != "" {
		if err := os.MkdirAll(d.dir, 0o755); err != nil {
			return 0, 0, fmt.Errorf("failed to create output dir: %w", err)
		}
		name := fmt.Sprintf("%s-%s-%d.wav", label, d.now().Format("20060102-150405"), src)
		path := filepath.Join(d.dir, name)
		if err := os.WriteFile(path, EncodeWAV(clip), 0o644); err != nil {
			return 0, 0, fmt.Errorf("failed to write clip: %w", err)
		}
		d.logger.Debug("clip written", zap.String("path", path), zap.Duration("duration", clip.Duration()))
	}

	d.buffers[buf] = clip
	d.sources[src] = fileSource{buffer: buf, ends: d.now().Add(clip.Duration())}
	return src, buf, nil
}

// SourceStopped reports whether the source finished or was never created.
func (d *FileDevice) SourceStopped(src SourceID) bool {
	s, ok := d.sources[src]
	if !ok {
		return true
	}
	return !d.now().Before(s.ends)
}

// DeleteSource frees a source.
func (d *FileDevice) DeleteSource(src SourceID) { delete(d.sources, src) }

// DeleteBuffer frees a buffer.
func (d *FileDevice) DeleteBuffer(buf BufferID) { delete(d.buffers, buf) }

// Live returns the number of sources and buffers still allocated.
func (d *FileDevice) Live() (sources, buffers int) {
	return len(d.sources), len(d.buffers)
}

// EncodeWAV wraps PCM in a canonical 44-byte RIFF header.
func EncodeWAV(clip Clip) []byte {
	var buf bytes.Buffer
	blockAlign := clip.Channels * 2
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(uint32(36 + len(clip.Data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1))
	w(uint16(clip.Channels))
	w(uint32(clip.SampleRate))
	w(uint32(clip.SampleRate * blockAlign))
	w(uint16(blockAlign))
	w(uint16(16))
	buf.WriteString("data")
	w(uint32(len(clip.Data)))
	buf.Write(clip.Data)
	return buf.Bytes()
}
