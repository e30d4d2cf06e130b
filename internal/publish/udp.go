package publish

import (
	"fmt"
	"net"

	"nimctl/internal/errcode"
)

// UDPStatusPublisher implements spec.md §4.6's UDP status sink: "one
// datagram per field with body '$<code>,<value>\n'".
type UDPStatusPublisher struct {
	conn *net.UDPConn
}

// DialUDPStatus opens the UDP status destination.
func DialUDPStatus(addr string) (*UDPStatusPublisher, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errcode.Wrap(errcode.UDPSocketOpen, "publish.DialUDPStatus", "resolve", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errcode.Wrap(errcode.UDPSocketOpen, "publish.DialUDPStatus", "dial", err)
	}
	return &UDPStatusPublisher{conn: conn}, nil
}

// Publish emits one datagram per field (spec.md §4.6).
func (u *UDPStatusPublisher) Publish(fs []Field) error {
	for _, f := range fs {
		line := fmt.Sprintf("$%d,%s\n", f.Code, f.Value)
		if _, err := u.conn.Write([]byte(line)); err != nil {
			return errcode.Wrap(errcode.UDPWrite, "publish.UDPStatusPublisher.Publish", "write", err)
		}
	}
	return nil
}

func (u *UDPStatusPublisher) Close() error {
	if err := u.conn.Close(); err != nil {
		return errcode.Wrap(errcode.UDPClose, "publish.UDPStatusPublisher.Close", "close", err)
	}
	return nil
}

// UDPTSSink implements tspipeline.Sink over a UDP socket, for the TS
// payload path spec.md §4.4/§4.6 share ("Also used for TS payload").
type UDPTSSink struct {
	conn *net.UDPConn
}

// DialUDPTS opens the UDP TS destination.
func DialUDPTS(ip string, port int) (*UDPTSSink, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, errcode.Wrap(errcode.UDPSocketOpen, "publish.DialUDPTS", "resolve", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errcode.Wrap(errcode.UDPSocketOpen, "publish.DialUDPTS", "dial", err)
	}
	return &UDPTSSink{conn: conn}, nil
}

// Write sends p as one UDP datagram (the caller has already re-framed
// or defragmented p into one send quantum).
func (s *UDPTSSink) Write(p []byte) error {
	_, err := s.conn.Write(p)
	if err != nil {
		return errcode.Wrap(errcode.UDPWrite, "publish.UDPTSSink.Write", "write", err)
	}
	return nil
}

func (s *UDPTSSink) Close() error {
	if err := s.conn.Close(); err != nil {
		return errcode.Wrap(errcode.UDPClose, "publish.UDPTSSink.Close", "close", err)
	}
	return nil
}
