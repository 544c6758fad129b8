package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// protocolVersion 二进制协议版本
const protocolVersion = 0b0001

// messageType 消息类型
type messageType uint8

const (
	fullClientRequest       messageType = 0b0001
	fullServerResponse      messageType = 0b1001
	audioOnlyServerResponse messageType = 0b1011
	errorMessage            messageType = 0b1111
)

// messageFlags 消息标志，低两位描述 sequence，0b0100 表示携带事件
type messageFlags uint8

const (
	noSequence       messageFlags = 0b0000
	positiveSequence messageFlags = 0b0001
	lastNoSequence   messageFlags = 0b0010
	negativeSequence messageFlags = 0b0011
	withEvent        messageFlags = 0b0100
)

const (
	serializationJSON uint8 = 0b0001
)

// eventType 服务端事件
type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionFinished    eventType = 152
)

// frame 一条协议消息
type frame struct {
	kind        messageType
	flags       messageFlags
	compression compressionMethod
	sequence    int32
	event       eventType
	sessionID   string
	connectID   string
	errorCode   uint32
	payload     []byte
}

// last 判断是否为最后一包
func (f *frame) last() bool {
	switch f.flags & 0b0011 {
	case lastNoSequence, negativeSequence:
		return true
	default:
		return f.sequence < 0
	}
}

func (f *frame) hasEvent() bool { return f.flags&withEvent == withEvent }

// encodeRequest 构造完整客户端请求
func encodeRequest(payload []byte, compression compressionMethod) ([]byte, error) {
	body, err := compress(payload, compression)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write([]byte{
		protocolVersion<<4 | 0b0001,
		uint8(fullClientRequest)<<4 | uint8(noSequence),
		serializationJSON<<4 | uint8(compression),
		0x00,
	})
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(body)))
	buf.Write(body)
	return buf.Bytes(), nil
}

// encodeFrame 编码任意消息，主要供测试中的模拟服务端使用
func encodeFrame(f *frame) ([]byte, error) {
	body, err := compress(f.payload, f.compression)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write([]byte{
		protocolVersion<<4 | 0b0001,
		uint8(f.kind)<<4 | uint8(f.flags),
		serializationJSON<<4 | uint8(f.compression),
		0x00,
	})
	w := func(v any) { _ = binary.Write(&buf, binary.BigEndian, v) }

	switch f.flags & 0b0011 {
	case positiveSequence, negativeSequence:
		w(f.sequence)
	}
	if f.hasEvent() {
		w(int32(f.event))
		if !eventSkipsSessionID(f.event) {
			w(uint32(len(f.sessionID)))
			buf.WriteString(f.sessionID)
		}
		if eventHasConnectID(f.event) {
			w(uint32(len(f.connectID)))
			buf.WriteString(f.connectID)
		}
	}
	if f.kind == errorMessage {
		w(f.errorCode)
	}
	w(uint32(len(body)))
	buf.Write(body)
	return buf.Bytes(), nil
}

// decodeFrame 解码服务端消息，并按头部声明解压 payload
func decodeFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if version := head[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("failed to read extended header: %w", err)
		}
	}

	f := &frame{
		kind:        messageType(head[1] >> 4),
		flags:       messageFlags(head[1] & 0x0F),
		compression: compressionMethod(head[2] & 0x0F),
	}
	read := func(v any, what string) error {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return fmt.Errorf("failed to read %s: %w", what, err)
		}
		return nil
	}
	readString := func(what string) (string, error) {
		var size uint32
		if err := read(&size, what+" size"); err != nil {
			return "", err
		}
		b := make([]byte, size)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("failed to read %s: %w", what, err)
		}
		return string(b), nil
	}

	switch f.flags & 0b0011 {
	case positiveSequence, negativeSequence:
		if err := read(&f.sequence, "sequence"); err != nil {
			return nil, err
		}
	}
	if f.hasEvent() {
		var ev int32
		if err := read(&ev, "event type"); err != nil {
			return nil, err
		}
		f.event = eventType(ev)
		var err error
		if !eventSkipsSessionID(f.event) {
			if f.sessionID, err = readString("session id"); err != nil {
				return nil, err
			}
		}
		if eventHasConnectID(f.event) {
			if f.connectID, err = readString("connect id"); err != nil {
				return nil, err
			}
		}
	}
	if f.kind == errorMessage {
		if err := read(&f.errorCode, "error code"); err != nil {
			return nil, err
		}
	}

	var size uint32
	if err := read(&size, "payload size"); err != nil {
		return nil, err
	}
	if size > 0 {
		raw := make([]byte, size)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("failed to read payload (expected %d bytes): %w", size, err)
		}
		payload, err := decompress(raw, f.compression)
		if err != nil {
			return nil, err
		}
		f.payload = payload
	}
	return f, nil
}

func eventSkipsSessionID(event eventType) bool {
	switch event {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}

func eventHasConnectID(event eventType) bool {
	switch event {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}
