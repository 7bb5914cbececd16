package multiloop

import (
	"errors"
	"io"
)

// ReadAll reads frames from r until EOF, returning every frame decoded
// before the stream ended. A short final frame or EOF mid-envelope ends
// the read without error, matching the relay's tolerance for a connection
// dropping between frames.
func ReadAll(r io.Reader) ([]Frame, error) {
	var frames []Frame
	for {
		f, err := ReadFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return frames, nil
			}
			return frames, err
		}
		frames = append(frames, f)
	}
}
