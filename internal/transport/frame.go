package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single part to protect against a malformed or
// malicious length prefix forcing an unbounded allocation.
const maxFrameSize = 16 * 1024 * 1024

// writeFrame writes one multipart [topic, payload] message as two
// length-prefixed parts (§6 "multipart frames [topic, JSON payload]").
func writeFrame(w io.Writer, topic string, payload []byte) error {
	if err := writePart(w, []byte(topic)); err != nil {
		return fmt.Errorf("transport: write topic part: %w", err)
	}
	if err := writePart(w, payload); err != nil {
		return fmt.Errorf("transport: write payload part: %w", err)
	}
	return nil
}

func writePart(w io.Writer, part []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(part)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(part)
	return err
}

// readFrame reads one multipart [topic, payload] message.
func readFrame(r *bufio.Reader) (topic string, payload []byte, err error) {
	topicBytes, err := readPart(r)
	if err != nil {
		return "", nil, err
	}
	payload, err = readPart(r)
	if err != nil {
		return "", nil, fmt.Errorf("transport: read payload part: %w", err)
	}
	return string(topicBytes), payload, nil
}

func readPart(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame part of %d bytes exceeds max %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("transport: read frame part: %w", err)
	}
	return buf, nil
}
