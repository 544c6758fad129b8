package speech

import "github.com/zhouzirui/clanker/backend/internal/model/world"

// FrameType tags a frame pushed to a listener over websocket.
type FrameType string

const (
	FrameMessage FrameType = "message"
	FrameSpeech  FrameType = "speech"
	FrameAudio   FrameType = "audio"
)

// Frame is the JSON envelope sent to listeners. Audio frames carry base64
// little-endian 16-bit PCM; a nil Position means play without spatialisation.
type Frame struct {
	Type       FrameType   `json:"type"`
	UserID     string      `json:"userId"`
	Text       string      `json:"text,omitempty"`
	ActorID    string      `json:"actorId,omitempty"`
	Position   *world.Vec3 `json:"position,omitempty"`
	PCM        string      `json:"pcm,omitempty"`
	SampleRate int         `json:"sampleRate,omitempty"`
	Channels   int         `json:"channels,omitempty"`
}
