// Package multiloop decodes the Multiloop binary timing protocol:
// length-prefixed frames with a message-number envelope, carrying typed
// sub-messages (§6.2). Only the sub-messages this system consumes are
// decoded; anything else is returned as a raw Unknown message for the
// caller to log and skip.
package multiloop

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType identifies a decoded sub-message.
type MessageType byte

const (
	TypeAnnouncement     MessageType = 1
	TypeCompletedLap     MessageType = 2
	TypeCompletedSection MessageType = 3
	TypeLineCrossing     MessageType = 4
	TypeFlagInformation  MessageType = 5
	TypeRunInformation   MessageType = 6
	TypeUnknown          MessageType = 0xFF
)

// CrossingStatus is the LineCrossing sub-message's location enum.
type CrossingStatus byte

const (
	CrossingPit   CrossingStatus = 1
	CrossingTrack CrossingStatus = 2
)

// RunType is the RunInformation sub-message's session category.
type RunType byte

const (
	RunRace                RunType = 1
	RunPractice            RunType = 2
	RunQualifying          RunType = 3
	RunSingleCarQualifying RunType = 4
)

// Frame is one decoded Multiloop message: the envelope plus exactly one
// populated sub-message, matching Type.
type Frame struct {
	MessageNumber uint32
	Type          MessageType

	Announcement     *Announcement
	CompletedLap     *CompletedLap
	CompletedSection *CompletedSection
	LineCrossing     *LineCrossing
	FlagInformation  *FlagInformation
	RunInformation   *RunInformation
	Unknown          []byte
}

type Announcement struct {
	Text     string
	Priority int
}

type CompletedLap struct {
	Number          string
	StartPosition   int
	LapsLed         int
	LastLapPitted   bool
	PitStopCount    int
	CurrentStatus   string
}

type CompletedSection struct {
	Number        string
	SectionID     string
	ElapsedMs     int64
	LastSectionMs int64
	LastLap       int
}

type LineCrossing struct {
	Number         string
	CrossingStatus CrossingStatus
}

type FlagInformation struct {
	GreenTimeMs      int64
	GreenLaps        int32
	YellowTimeMs     int64
	YellowLaps       int32
	NumberOfYellows  int32
	RedTimeMs        int64
	AverageRaceSpeed float64
	LeadChanges      int32
}

type RunInformation struct {
	RunName string
	RunType RunType
}

// ErrShortFrame is returned when the length prefix promises more bytes than
// are available.
var ErrShortFrame = fmt.Errorf("multiloop: short frame")

// ReadFrame reads one length-prefixed frame from r: a uint32 big-endian
// byte length, followed by a uint32 message number, a one-byte message
// type, and the type-specific payload.
func ReadFrame(r io.Reader) (Frame, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Frame{}, err
	}
	if length < 5 {
		return Frame{}, fmt.Errorf("%w: length %d too small for envelope", ErrShortFrame, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("multiloop: read body: %w", err)
	}

	msgNum := binary.BigEndian.Uint32(body[0:4])
	msgType := MessageType(body[4])
	payload := body[5:]

	f := Frame{MessageNumber: msgNum, Type: msgType}

	switch msgType {
	case TypeAnnouncement:
		text, priority, err := decodeAnnouncement(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Announcement = &Announcement{Text: text, Priority: priority}

	case TypeCompletedLap:
		cl, err := decodeCompletedLap(payload)
		if err != nil {
			return Frame{}, err
		}
		f.CompletedLap = cl

	case TypeCompletedSection:
		cs, err := decodeCompletedSection(payload)
		if err != nil {
			return Frame{}, err
		}
		f.CompletedSection = cs

	case TypeLineCrossing:
		lc, err := decodeLineCrossing(payload)
		if err != nil {
			return Frame{}, err
		}
		f.LineCrossing = lc

	case TypeFlagInformation:
		fi, err := decodeFlagInformation(payload)
		if err != nil {
			return Frame{}, err
		}
		f.FlagInformation = fi

	case TypeRunInformation:
		ri, err := decodeRunInformation(payload)
		if err != nil {
			return Frame{}, err
		}
		f.RunInformation = ri

	default:
		f.Type = TypeUnknown
		f.Unknown = payload
	}

	return f, nil
}
