package multiloop

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("multiloop: read string length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("multiloop: read string body: %w", err)
	}
	return string(buf), nil
}

func writeString(w *bytes.Buffer, s string) {
	_ = binary.Write(w, binary.BigEndian, uint16(len(s)))
	w.WriteString(s)
}

func decodeAnnouncement(payload []byte) (string, int, error) {
	r := bytes.NewReader(payload)
	text, err := readString(r)
	if err != nil {
		return "", 0, err
	}
	var priority int32
	if err := binary.Read(r, binary.BigEndian, &priority); err != nil {
		return "", 0, fmt.Errorf("multiloop: announcement priority: %w", err)
	}
	return text, int(priority), nil
}

func decodeCompletedLap(payload []byte) (*CompletedLap, error) {
	r := bytes.NewReader(payload)
	number, err := readString(r)
	if err != nil {
		return nil, err
	}
	var startPos, lapsLed, pitStops int32
	var pitted byte
	var status string
	if err := binary.Read(r, binary.BigEndian, &startPos); err != nil {
		return nil, fmt.Errorf("multiloop: start position: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &lapsLed); err != nil {
		return nil, fmt.Errorf("multiloop: laps led: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &pitted); err != nil {
		return nil, fmt.Errorf("multiloop: last lap pitted: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &pitStops); err != nil {
		return nil, fmt.Errorf("multiloop: pit stop count: %w", err)
	}
	status, err = readString(r)
	if err != nil {
		return nil, err
	}
	return &CompletedLap{
		Number: number, StartPosition: int(startPos), LapsLed: int(lapsLed),
		LastLapPitted: pitted != 0, PitStopCount: int(pitStops), CurrentStatus: status,
	}, nil
}

func decodeCompletedSection(payload []byte) (*CompletedSection, error) {
	r := bytes.NewReader(payload)
	number, err := readString(r)
	if err != nil {
		return nil, err
	}
	sectionID, err := readString(r)
	if err != nil {
		return nil, err
	}
	var elapsed, lastSection int64
	var lastLap int32
	if err := binary.Read(r, binary.BigEndian, &elapsed); err != nil {
		return nil, fmt.Errorf("multiloop: elapsed ms: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &lastSection); err != nil {
		return nil, fmt.Errorf("multiloop: last section ms: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &lastLap); err != nil {
		return nil, fmt.Errorf("multiloop: last lap: %w", err)
	}
	return &CompletedSection{
		Number: number, SectionID: sectionID, ElapsedMs: elapsed,
		LastSectionMs: lastSection, LastLap: int(lastLap),
	}, nil
}

func decodeLineCrossing(payload []byte) (*LineCrossing, error) {
	r := bytes.NewReader(payload)
	number, err := readString(r)
	if err != nil {
		return nil, err
	}
	var status byte
	if err := binary.Read(r, binary.BigEndian, &status); err != nil {
		return nil, fmt.Errorf("multiloop: crossing status: %w", err)
	}
	return &LineCrossing{Number: number, CrossingStatus: CrossingStatus(status)}, nil
}

func decodeFlagInformation(payload []byte) (*FlagInformation, error) {
	r := bytes.NewReader(payload)
	var fi FlagInformation
	var greenLaps, yellowLaps, numYellows, leadChanges int32
	fields := []struct {
		name string
		dst  any
	}{
		{"green time", &fi.GreenTimeMs},
		{"green laps", &greenLaps},
		{"yellow time", &fi.YellowTimeMs},
		{"yellow laps", &yellowLaps},
		{"number of yellows", &numYellows},
		{"red time", &fi.RedTimeMs},
		{"average race speed", &fi.AverageRaceSpeed},
		{"lead changes", &leadChanges},
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f.dst); err != nil {
			return nil, fmt.Errorf("multiloop: flag information %s: %w", f.name, err)
		}
	}
	fi.GreenLaps = greenLaps
	fi.YellowLaps = yellowLaps
	fi.NumberOfYellows = numYellows
	fi.LeadChanges = leadChanges
	return &fi, nil
}

func decodeRunInformation(payload []byte) (*RunInformation, error) {
	r := bytes.NewReader(payload)
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	var runType byte
	if err := binary.Read(r, binary.BigEndian, &runType); err != nil {
		return nil, fmt.Errorf("multiloop: run type: %w", err)
	}
	return &RunInformation{RunName: name, RunType: RunType(runType)}, nil
}

// EncodeFrame serializes f back into the length-prefixed wire form
// ReadFrame expects. Used by the relay ingress test harness and by tests
// round-tripping each sub-message.
func EncodeFrame(f Frame) []byte {
	var body bytes.Buffer
	_ = binary.Write(&body, binary.BigEndian, f.MessageNumber)
	body.WriteByte(byte(f.Type))

	switch f.Type {
	case TypeAnnouncement:
		writeString(&body, f.Announcement.Text)
		_ = binary.Write(&body, binary.BigEndian, int32(f.Announcement.Priority))
	case TypeCompletedLap:
		cl := f.CompletedLap
		writeString(&body, cl.Number)
		_ = binary.Write(&body, binary.BigEndian, int32(cl.StartPosition))
		_ = binary.Write(&body, binary.BigEndian, int32(cl.LapsLed))
		if cl.LastLapPitted {
			body.WriteByte(1)
		} else {
			body.WriteByte(0)
		}
		_ = binary.Write(&body, binary.BigEndian, int32(cl.PitStopCount))
		writeString(&body, cl.CurrentStatus)
	case TypeCompletedSection:
		cs := f.CompletedSection
		writeString(&body, cs.Number)
		writeString(&body, cs.SectionID)
		_ = binary.Write(&body, binary.BigEndian, cs.ElapsedMs)
		_ = binary.Write(&body, binary.BigEndian, cs.LastSectionMs)
		_ = binary.Write(&body, binary.BigEndian, int32(cs.LastLap))
	case TypeLineCrossing:
		lc := f.LineCrossing
		writeString(&body, lc.Number)
		body.WriteByte(byte(lc.CrossingStatus))
	case TypeFlagInformation:
		fi := f.FlagInformation
		_ = binary.Write(&body, binary.BigEndian, fi.GreenTimeMs)
		_ = binary.Write(&body, binary.BigEndian, fi.GreenLaps)
		_ = binary.Write(&body, binary.BigEndian, fi.YellowTimeMs)
		_ = binary.Write(&body, binary.BigEndian, fi.YellowLaps)
		_ = binary.Write(&body, binary.BigEndian, fi.NumberOfYellows)
		_ = binary.Write(&body, binary.BigEndian, fi.RedTimeMs)
		_ = binary.Write(&body, binary.BigEndian, fi.AverageRaceSpeed)
		_ = binary.Write(&body, binary.BigEndian, fi.LeadChanges)
	case TypeRunInformation:
		ri := f.RunInformation
		writeString(&body, ri.RunName)
		body.WriteByte(byte(ri.RunType))
	default:
		body.Write(f.Unknown)
	}

	var out bytes.Buffer
	_ = binary.Write(&out, binary.BigEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}
