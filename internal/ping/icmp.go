package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const echoData = "connwatch"

// ICMPPinger sends ICMP echo requests using raw sockets.
type ICMPPinger struct {
	id  int
	seq uint32
}

// NewICMPPinger initializes a pinger with a process-scoped identifier. It
// fails when the process may not open a raw ICMP socket.
func NewICMPPinger() (*ICMPPinger, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("open raw icmp socket: %w", err)
	}
	_ = conn.Close()
	return &ICMPPinger{id: os.Getpid() & 0xffff}, nil
}

// Ping sends one ICMP echo request and waits for the reply.
func (p *ICMPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: contextStatus(err), Error: err}
	}

	ip, ipNet, err := resolveIP(addr)
	if err != nil {
		// Unresolvable names are unreachable targets, not probe faults.
		return Result{Status: StatusFailed, Error: err}
	}

	network, protocol, requestType, replyType := icmpSettings(ipNet)
	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		return Result{Status: StatusError, Error: err}
	}
	defer conn.Close()

	seq := int(atomic.AddUint32(&p.seq, 1) & 0xffff)
	msg := icmp.Message{
		Type: requestType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: []byte(echoData),
		},
	}

	payload, err := msg.Marshal(nil)
	if err != nil {
		return Result{Status: StatusError, Error: err}
	}

	deadline := effectiveDeadline(ctx, timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return Result{Status: StatusError, Error: err}
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, ip); err != nil {
		return Result{Status: StatusFailed, Error: err}
	}

	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return Result{Status: contextStatus(err), Error: err}
		}

		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Result{Status: StatusTimeout, Error: fmt.Errorf("ping timeout: %w", err)}
			}
			return Result{Status: StatusError, Error: err}
		}
		if peer == nil {
			continue
		}

		reply, err := icmp.ParseMessage(protocol, buf[:n])
		if err != nil {
			continue
		}
		switch reply.Type {
		case ipv4.ICMPTypeDestinationUnreachable, ipv6.ICMPTypeDestinationUnreachable:
			if unreach, ok := reply.Body.(*icmp.DstUnreach); ok && p.ownsEmbeddedEcho(unreach.Data, ipNet.To4() == nil, seq) {
				return Result{Status: StatusFailed, Error: fmt.Errorf("destination unreachable from %s", peer)}
			}
			continue
		case replyType:
		default:
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok {
			continue
		}
		if body.ID != p.id || body.Seq != seq {
			continue
		}

		return Result{Status: StatusSuccess, RTT: time.Since(start), HasRTT: true}
	}
}

// ownsEmbeddedEcho checks that the datagram quoted in an unreachable message
// is our own echo request, since raw sockets see every ICMP packet on the host.
func (p *ICMPPinger) ownsEmbeddedEcho(data []byte, v6 bool, seq int) bool {
	headerLen := ipv6.HeaderLen
	if !v6 {
		if len(data) < ipv4.HeaderLen {
			return false
		}
		headerLen = int(data[0]&0x0f) * 4
	}
	if len(data) < headerLen+8 {
		return false
	}
	echo := data[headerLen:]
	id := int(echo[4])<<8 | int(echo[5])
	gotSeq := int(echo[6])<<8 | int(echo[7])
	return id == p.id && gotSeq == seq
}

func resolveIP(addr string) (*net.IPAddr, net.IP, error) {
	ipAddr, err := net.ResolveIPAddr("ip", addr)
	if err != nil {
		return nil, nil, err
	}
	if ipAddr.IP == nil {
		return nil, nil, fmt.Errorf("invalid IP address: %s", addr)
	}
	return ipAddr, ipAddr.IP, nil
}

func icmpSettings(ip net.IP) (network string, protocol int, requestType icmp.Type, replyType icmp.Type) {
	if ip.To4() != nil {
		return "ip4:icmp", ipv4.ICMPTypeEcho.Protocol(), ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	}
	return "ip6:ipv6-icmp", ipv6.ICMPTypeEchoRequest.Protocol(), ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
}

func effectiveDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}
