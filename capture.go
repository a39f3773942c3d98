package main

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// tickCapture records accepted tick messages to a pcap file, each
// wrapped as a synthetic UDP packet so the stream can be replayed and
// dissected with ordinary capture tooling.
type tickCapture struct {
	mu  sync.Mutex
	f   *os.File
	w   *pcapgo.Writer
	buf gopacket.SerializeBuffer
}

func newTickCapture(path string) (*tickCapture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, err
	}
	return &tickCapture{f: f, w: w, buf: gopacket.NewSerializeBuffer()}, nil
}

func (c *tickCapture) WriteTick(m []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := layers.UDP{SrcPort: 5029, DstPort: 5029}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		return err
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(c.buf, opts, &eth, &ip, &udp, gopacket.Payload(m)); err != nil {
		return err
	}
	data := c.buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	return c.w.WritePacket(ci, data)
}

func (c *tickCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}
