package stream

import (
	"encoding/binary"
	"math"

	"github.com/seqsense/lidarsim/scan"
)

// EncodedSize returns the payload size of n points.
func EncodedSize(n int, reserved bool) int {
	if reserved {
		return n * 16
	}
	return n * 12
}

// Encode appends the wire representation of s to dst.
func Encode(dst []byte, s *scan.Scan, reserved bool) []byte {
	for _, p := range s.Points {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(p[0])))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(p[1])))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(p[2])))
		if reserved {
			dst = binary.LittleEndian.AppendUint32(dst, 0)
		}
	}
	return dst
}

// message is one queued scan. The payload is handed over to the socket on
// Send and never written again: zmq4 queues the frame and writes it to the
// connections from its own goroutine after Send has returned.
type message struct {
	index   int
	payload []byte
}

func newMessage(index int, s *scan.Scan, reserved bool) *message {
	return &message{
		index:   index,
		payload: Encode(make([]byte, 0, EncodedSize(s.Len(), reserved)), s, reserved),
	}
}
