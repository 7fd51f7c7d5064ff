// Package dnsfrontend is the raw UDP DNS server that decides, per query,
// whether to answer with a synthetic blocked response or forward to the
// upstream resolver.
package dnsfrontend

import (
	"context"
	"errors"
	"net"

	"github.com/miekg/dns"

	"github.com/lc/blockandfocus/internal/log"
	"github.com/lc/blockandfocus/internal/state"
)

const (
	recvBufferSize = 512
	blockedTTL     = 60
	blockedIPv4    = "0.0.0.0"
	blockedIPv6    = "::"
)

// Resolver is the upstream lookup surface the frontend needs --
// satisfied by *dnsresolver.Client.
type Resolver interface {
	Resolve(ctx context.Context, name string, qtype uint16) (*dns.Msg, error)
}

// Server is the UDP DNS frontend.
type Server struct {
	state    *state.AppState
	resolver Resolver

	conn *net.UDPConn
}

// New creates a DNS frontend over state, forwarding non-blocked queries
// through resolver.
func New(st *state.AppState, resolver Resolver) *Server {
	return &Server{state: st, resolver: resolver}
}

// ListenAndServe binds addr ("host:port") and serves UDP DNS queries,
// one goroutine per datagram, until ctx is cancelled or the socket is
// closed.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.conn = conn

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, recvBufferSize)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warnf("dnsfrontend: read error: %v", err)
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go s.handle(ctx, datagram, src)
	}
}

// Close stops accepting new datagrams.
func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) handle(ctx context.Context, raw []byte, src *net.UDPAddr) {
	req := new(dns.Msg)
	if err := req.Unpack(raw); err != nil {
		log.Debugf("dnsfrontend: dropping unparseable datagram from %s: %v", src, err)
		return
	}
	if len(req.Question) == 0 {
		log.Debugf("dnsfrontend: dropping question-less datagram from %s", src)
		return
	}

	q := req.Question[0]
	var resp *dns.Msg

	if s.state.IsBlockingActive() && s.state.MatchesBlocklist(q.Name) {
		resp = blockedResponse(req, q)
		s.state.RecordBlocked()
	} else {
		upstream, err := s.resolver.Resolve(ctx, q.Name, q.Qtype)
		if err != nil {
			log.Warnf("dnsfrontend: upstream resolve failed for %q: %v", q.Name, err)
			resp = servfailResponse(req)
		} else {
			rcode := upstream.Rcode
			resp = upstream
			resp.SetReply(req)
			resp.Rcode = rcode
		}
		s.state.RecordForwarded()
	}

	out, err := resp.Pack()
	if err != nil {
		log.Warnf("dnsfrontend: packing response for %q: %v", q.Name, err)
		return
	}
	if _, err := s.conn.WriteToUDP(out, src); err != nil {
		log.Warnf("dnsfrontend: write to %s failed: %v", src, err)
	}
}

// blockedResponse synthesizes the answer for a blocked query, per the
// per-qtype shapes: A -> 0.0.0.0, AAAA -> ::, anything else -> NXDOMAIN.
func blockedResponse(req *dns.Msg, q dns.Question) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = false
	resp.RecursionAvailable = true

	switch q.Qtype {
	case dns.TypeA:
		resp.Answer = []dns.RR{&dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: blockedTTL},
			A:   net.ParseIP(blockedIPv4),
		}}
		resp.Rcode = dns.RcodeSuccess
	case dns.TypeAAAA:
		resp.Answer = []dns.RR{&dns.AAAA{
			Hdr:  dns.RR_Header{Name: q.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: blockedTTL},
			AAAA: net.ParseIP(blockedIPv6),
		}}
		resp.Rcode = dns.RcodeSuccess
	default:
		resp.Rcode = dns.RcodeNameError
	}
	return resp
}

func servfailResponse(req *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = false
	resp.RecursionAvailable = true
	resp.Rcode = dns.RcodeServerFailure
	return resp
}
