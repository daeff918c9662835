// Package fingerprint builds HTTP transports whose TLS ClientHello mimics a real
// browser, so the direct scrape backend is not fingerprinted as a Go client.
package fingerprint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS fingerprint.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // crypto/tls as is
	ProfileRandom  Profile = "random" // randomized hello without ALPN
)

// handshakeTimeout bounds the uTLS handshake independently of the client timeout.
const handshakeTimeout = 10 * time.Second

// Options tune a transport.
type Options struct {
	// Proxy becomes the transport's Proxy func when set.
	Proxy func(*http.Request) (*url.URL, error)
	// RootCAs overrides the system roots.
	RootCAs *x509.CertPool
}

// Transport returns a RoundTripper whose TLS handshake looks like profile p.
// ProfileGo yields a cloned http.Transport; every other profile handshakes
// through utls and is pinned to HTTP/1.1, since the transport cannot speak h2
// over a connection it did not negotiate itself.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = handshakeTimeout
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if p == ProfileGo {
		if opts.RootCAs != nil {
			transport.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs}
		}
		return transport, nil
	}

	hello, err := helloFor(p)
	if err != nil {
		return nil, err
	}
	transport.ForceAttemptHTTP2 = false
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		conf := &utls.Config{ServerName: host, RootCAs: opts.RootCAs}

		// Specs carry per-handshake state, so each dial builds a fresh one.
		var uConn *utls.UConn
		if spec, ok := http1Spec(hello); ok {
			uConn = utls.UClient(tcpConn, conf, utls.HelloCustom)
			if err := uConn.ApplyPreset(&spec); err != nil {
				_ = tcpConn.Close()
				return nil, fmt.Errorf("fingerprint: apply %s preset: %w", p, err)
			}
		} else {
			uConn = utls.UClient(tcpConn, conf, hello)
		}

		hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
		defer cancel()
		if err := uConn.HandshakeContext(hsCtx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake with %s: %w", host, err)
		}
		return uConn, nil
	}

	return transport, nil
}

// http1Spec expands a hello into its ClientHello spec with ALPN limited to
// http/1.1. Randomized hellos get a fresh seed on every call.
func http1Spec(hello utls.ClientHelloID) (utls.ClientHelloSpec, bool) {
	spec, err := utls.UTLSIdToSpec(hello)
	if err != nil {
		return utls.ClientHelloSpec{}, false
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	dropUnsharedHybrids(&spec)
	return spec, true
}

// dropUnsharedHybrids removes post-quantum hybrid groups that are advertised
// without a key share, and key shares for hybrids that are not advertised.
// utls cannot answer a HelloRetryRequest for a hybrid group, and servers that
// prefer one (crypto/tls among them) send exactly that.
func dropUnsharedHybrids(spec *utls.ClientHelloSpec) {
	var curves *utls.SupportedCurvesExtension
	var shares *utls.KeyShareExtension
	for _, ext := range spec.Extensions {
		switch e := ext.(type) {
		case *utls.SupportedCurvesExtension:
			curves = e
		case *utls.KeyShareExtension:
			shares = e
		}
	}
	if curves == nil || shares == nil {
		return
	}

	shared := map[utls.CurveID]bool{}
	for _, ks := range shares.KeyShares {
		shared[ks.Group] = true
	}
	advertised := map[utls.CurveID]bool{}
	kept := curves.Curves[:0]
	for _, c := range curves.Curves {
		if isHybrid(c) && !shared[c] {
			continue
		}
		advertised[c] = true
		kept = append(kept, c)
	}
	curves.Curves = kept

	keptShares := shares.KeyShares[:0]
	for _, ks := range shares.KeyShares {
		if isHybrid(ks.Group) && !advertised[ks.Group] {
			continue
		}
		keptShares = append(keptShares, ks)
	}
	shares.KeyShares = keptShares
}

func isHybrid(c utls.CurveID) bool {
	return c == utls.X25519MLKEM768 || c == utls.X25519Kyber768Draft00
}

func helloFor(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloSafari_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedNoALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}
