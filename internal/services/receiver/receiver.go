// Package receiver listens for Art-Net packets and feeds the frame buffer.
package receiver

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bbernstein/dmxbridge-go/internal/services/frame"
	"github.com/bbernstein/dmxbridge-go/internal/services/network"
	"github.com/bbernstein/dmxbridge-go/internal/services/pubsub"
	"github.com/bbernstein/dmxbridge-go/pkg/artnet"
)

// FrameEvent is published on TopicFrameReceived for each accepted packet.
type FrameEvent struct {
	Universe int  `json:"universe"`
	Sequence byte `json:"sequence"`
	Length   int  `json:"length"`
}

// Config holds receiver configuration.
type Config struct {
	Port      int
	ShortName string
	LongName  string
}

// Service owns the Art-Net UDP socket. Accepted ArtDmx packets update the
// frame buffer; ArtPoll packets get an ArtPollReply so controllers can
// discover the node.
type Service struct {
	cfg    Config
	buffer *frame.Buffer
	ps     *pubsub.PubSub

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool

	packetsAccepted atomic.Uint64
	packetsDropped  atomic.Uint64
}

// NewService creates a receiver for the given frame buffer. ps may be nil
// when no live feed is wanted.
func NewService(cfg Config, buffer *frame.Buffer, ps *pubsub.PubSub) *Service {
	if cfg.Port <= 0 {
		cfg.Port = artnet.DefaultPort
	}
	if cfg.ShortName == "" {
		cfg.ShortName = "dmxbridge"
	}
	if cfg.LongName == "" {
		cfg.LongName = "Art-Net to DMX512 bridge"
	}
	return &Service{cfg: cfg, buffer: buffer, ps: ps}
}

// Initialize binds the Art-Net port and starts the read loop.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.cfg.Port})
	if err != nil {
		return fmt.Errorf("artnet listen on :%d: %w", s.cfg.Port, err)
	}
	s.conn = conn
	s.running = true

	log.Printf("📡 Art-Net receiver listening on :%d (universe %d)", s.cfg.Port, s.buffer.Universe())
	go s.readLoop(conn)
	return nil
}

// Stop closes the socket; the read loop exits on the resulting read error.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	_ = s.conn.Close()
	s.conn = nil
	log.Printf("📡 Art-Net receiver stopped")
}

// PacketsAccepted returns the number of ArtDmx packets that updated the buffer.
func (s *Service) PacketsAccepted() uint64 { return s.packetsAccepted.Load() }

// PacketsDropped returns the number of packets filtered or rejected.
func (s *Service) PacketsDropped() uint64 { return s.packetsDropped.Load() }

func (s *Service) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if running {
				log.Printf("⚠️ Art-Net read error: %v", err)
			}
			return
		}

		switch artnet.OpCode(buf[:n]) {
		case artnet.OpCodeDMX:
			s.handleDMX(buf[:n])
		case artnet.OpCodePoll:
			s.handlePoll(conn, src)
		default:
			s.packetsDropped.Add(1)
		}
	}
}

func (s *Service) handleDMX(raw []byte) {
	packet, err := artnet.ParseDMXPacket(raw)
	if err != nil {
		s.packetsDropped.Add(1)
		return
	}

	if !s.buffer.Update(packet.Universe, packet.Sequence, packet.Data) {
		s.packetsDropped.Add(1)
		return
	}

	s.packetsAccepted.Add(1)
	if s.ps != nil {
		s.ps.Publish(pubsub.TopicFrameReceived, FrameEvent{
			Universe: packet.Universe,
			Sequence: packet.Sequence,
			Length:   len(packet.Data),
		})
	}
}

func (s *Service) handlePoll(conn *net.UDPConn, src *net.UDPAddr) {
	reply := artnet.BuildPollReply(network.PrimaryAddress(), s.cfg.ShortName, s.cfg.LongName, s.buffer.Universe())
	if _, err := conn.WriteToUDP(reply, src); err != nil {
		log.Printf("⚠️ ArtPollReply send error: %v", err)
	}
}
