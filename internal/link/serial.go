package link

import (
	"sort"

	"go.bug.st/serial"
)

// probeSerial opens and immediately closes device to confirm it exists and is
// not held by another process.
func probeSerial(device string, baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return newError(KindTransport, "dial", "open %s: %v", device, err)
	}
	return port.Close()
}

// ListSerialPorts returns the serial devices present on the host, sorted.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, newError(KindTransport, "list_ports", "enumerate serial ports: %v", err)
	}
	sort.Strings(ports)
	return ports, nil
}
