package uartdmx

import (
	"fmt"

	"github.com/tarm/serial"
)

// serialPort adapts a tarm/serial port to the Port interface. tarm exposes
// no way to change line parameters on an open port, so Reconfigure closes
// and reopens the device; kernel serial drivers drain the transmit queue on
// close, which keeps the break/data ordering intact.
//
// TODO: send a real break with the TCSBRKP ioctl (golang.org/x/sys/unix)
// on the open fd, which would drop the two reopen cycles per frame.
type serialPort struct {
	device string
	baud   int
	stops  serial.StopBits
	port   *serial.Port
}

// OpenPort opens the serial device at the DMX data preset (250000 8N2).
func OpenPort(device string) (Port, error) {
	p := &serialPort{device: device}
	if err := p.Reconfigure(DataBaud, 2); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *serialPort) Reconfigure(baud, stopBits int) error {
	stops := serial.Stop1
	if stopBits == 2 {
		stops = serial.Stop2
	}
	if p.port != nil {
		if baud == p.baud && stops == p.stops {
			return nil
		}
		if err := p.port.Close(); err != nil {
			return fmt.Errorf("close %s: %w", p.device, err)
		}
		p.port = nil
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:     p.device,
		Baud:     baud,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: stops,
	})
	if err != nil {
		return fmt.Errorf("open %s at %d baud: %w", p.device, baud, err)
	}

	p.port = port
	p.baud = baud
	p.stops = stops
	return nil
}

func (p *serialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}
