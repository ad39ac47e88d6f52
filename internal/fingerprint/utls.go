package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS ClientHello fingerprint used by the http engine.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard crypto/tls
	ProfileRandom  Profile = "random" // randomized uTLS hello without ALPN
)

// ParseProfile maps a configuration value to a Profile. The empty string
// selects ProfileChrome.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileChrome, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("fingerprint: unknown profile %q", s)
	}
}

type options struct {
	insecure bool
}

// Option tweaks the transport built by Transport.
type Option func(*options)

// WithInsecureSkipVerify disables certificate verification. Only meant for
// tests against self-signed servers.
func WithInsecureSkipVerify() Option {
	return func(o *options) { o.insecure = true }
}

// Transport returns an http.RoundTripper presenting the TLS fingerprint of
// profile p. ProfileGo returns a plain clone of http.DefaultTransport.
//
// Hellos are pinned to ALPN http/1.1: the returned transport dials TLS itself,
// which keeps net/http from speaking HTTP/2 on the connection.
func Transport(p Profile, opts ...Option) (http.RoundTripper, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	if p == ProfileGo {
		if o.insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	var helloID utls.ClientHelloID
	switch p {
	case ProfileChrome:
		helloID = utls.HelloChrome_Auto
	case ProfileFirefox:
		helloID = utls.HelloFirefox_Auto
	case ProfileSafari:
		helloID = utls.HelloIOS_Auto
	case ProfileRandom:
		helloID = utls.HelloRandomizedNoALPN
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := newClient(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: o.insecure,
		}, helloID)
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake with %s: %w", host, err)
		}
		return uConn, nil
	}

	return transport, nil
}

// newClient builds a uTLS connection for id with ALPN restricted to
// http/1.1. Ids without a static spec (randomized ones) are used as is.
func newClient(conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) (*utls.UConn, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.UClient(conn, cfg, id), nil
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("fingerprint: apply %s preset: %w", id.Str(), err)
	}
	return uConn, nil
}
