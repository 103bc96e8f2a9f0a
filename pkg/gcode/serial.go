package gcode

import (
	"fmt"

	"github.com/tarm/serial"
)

// OpenSerial opens a serial-port command source: the classic host link
// for octoprint-style senders. Replies go back over the same port.
func OpenSerial(device string, baud int) (*LineSource, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("gcode: opening %s: %w", device, err)
	}
	return NewLineSource(device, port, port, port), nil
}
