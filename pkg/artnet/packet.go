// Package artnet provides Art-Net protocol packet building and parsing.
package artnet

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data (ArtDmx).
	OpCodeDMX uint16 = 0x5000
	// OpCodePoll is the Art-Net operation code for node discovery (ArtPoll).
	OpCodePoll uint16 = 0x2000
	// OpCodePollReply is the Art-Net operation code for discovery replies (ArtPollReply).
	OpCodePollReply uint16 = 0x2100
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// DMXDataLength is the number of DMX channels per universe.
	DMXDataLength uint16 = 512
	// HeaderSize is the size of an ArtDmx header before channel data.
	HeaderSize = 18
	// PacketSize is the total size of a full ArtDmx packet.
	PacketSize = HeaderSize + DMXDataLength
	// PollReplySize is the size of an ArtPollReply packet.
	PollReplySize = 239
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// DMXPacket is a parsed ArtDmx packet.
type DMXPacket struct {
	Universe int  // 0-based wire universe (SubUni + Net<<8)
	Sequence byte // 0 means the sender does not use sequencing
	Data     []byte
}

// BuildDMXPacket creates an ArtDmx packet for the specified wire universe.
// Channels may be shorter than 512; the packet is padded with zeros.
// Sequence should increment for each packet (wraps at 255) so receivers can
// detect out-of-order UDP delivery.
func BuildDMXPacket(universe int, channels []byte, sequence byte) []byte {
	packet := make([]byte, PacketSize)

	copy(packet[0:8], ArtNetID)                                    // ID (8 bytes): "Art-Net\0"
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)         // OpCode (2 bytes)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)     // ProtVer (2 bytes)
	packet[12] = sequence                                          // Sequence (1 byte)
	packet[13] = 0                                                 // Physical input port (1 byte)
	binary.LittleEndian.PutUint16(packet[14:16], uint16(universe)) // SubUni + Net (2 bytes)
	binary.BigEndian.PutUint16(packet[16:18], DMXDataLength)       // Length (2 bytes)

	if len(channels) >= int(DMXDataLength) {
		copy(packet[HeaderSize:], channels[:DMXDataLength])
	} else {
		copy(packet[HeaderSize:HeaderSize+len(channels)], channels)
	}

	return packet
}

// OpCode returns the opcode of a raw Art-Net packet, or 0 if the buffer does
// not carry the Art-Net ID at all.
func OpCode(raw []byte) uint16 {
	if len(raw) < 10 || string(raw[0:8]) != string(ArtNetID) {
		return 0
	}
	return binary.LittleEndian.Uint16(raw[8:10])
}

// ParseDMXPacket parses a raw ArtDmx packet. The returned Data aliases raw,
// so callers that retain it past the read buffer's reuse must copy.
func ParseDMXPacket(raw []byte) (*DMXPacket, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("artnet: packet too short (%d bytes)", len(raw))
	}
	if string(raw[0:8]) != string(ArtNetID) {
		return nil, fmt.Errorf("artnet: bad packet ID")
	}
	if op := binary.LittleEndian.Uint16(raw[8:10]); op != OpCodeDMX {
		return nil, fmt.Errorf("artnet: unexpected opcode 0x%04x", op)
	}
	if ver := binary.BigEndian.Uint16(raw[10:12]); ver < ProtocolVersion {
		return nil, fmt.Errorf("artnet: unsupported protocol version %d", ver)
	}

	length := int(binary.BigEndian.Uint16(raw[16:18]))
	if length > int(DMXDataLength) {
		return nil, fmt.Errorf("artnet: oversized data length %d", length)
	}
	if len(raw) < HeaderSize+length {
		return nil, fmt.Errorf("artnet: truncated packet (%d bytes, length %d)", len(raw), length)
	}

	return &DMXPacket{
		Universe: int(binary.LittleEndian.Uint16(raw[14:16])),
		Sequence: raw[12],
		Data:     raw[HeaderSize : HeaderSize+length],
	}, nil
}

// BuildPollReply creates an ArtPollReply advertising a single DMX output port
// subscribed to the given wire universe.
func BuildPollReply(ip net.IP, shortName, longName string, universe int) []byte {
	packet := make([]byte, PollReplySize)

	copy(packet[0:8], ArtNetID)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodePollReply)

	if ip4 := ip.To4(); ip4 != nil {
		copy(packet[10:14], ip4)
	}
	binary.LittleEndian.PutUint16(packet[14:16], DefaultPort)

	packet[18] = byte(universe >> 8)      // NetSwitch
	packet[19] = byte(universe>>4) & 0x0f // SubSwitch

	copy(packet[26:44], truncate(shortName, 17))                     // ShortName (18, null-terminated)
	copy(packet[44:108], truncate(longName, 63))                     // LongName (64, null-terminated)
	copy(packet[108:172], truncate("#0001 [0000] dmxbridge up", 63)) // NodeReport

	binary.BigEndian.PutUint16(packet[172:174], 1) // NumPorts
	packet[174] = 0x80                             // PortTypes[0]: output, DMX512
	packet[182] = 0x80                             // GoodOutput[0]: transmitting
	packet[190] = byte(universe) & 0x0f            // SwOut[0]

	return packet
}

func truncate(s string, max int) []byte {
	if len(s) > max {
		s = s[:max]
	}
	return []byte(s)
}
