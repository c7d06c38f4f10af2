package session

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func req(remoteAddr string, headers map[string]string) *http.Request {
	r := &http.Request{RemoteAddr: remoteAddr, Header: http.Header{}}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestResolveClientAddrFallsBackToTransport(t *testing.T) {
	host, port := ResolveClientAddr(req("10.0.0.1:5000", nil))
	assert.Equal(t, "10.0.0.1", host)
	assert.Equal(t, "5000", port)
}

func TestResolveClientAddrPrefersXRealIPOverTransport(t *testing.T) {
	host, _ := ResolveClientAddr(req("10.0.0.1:5000", map[string]string{
		"X-Real-IP": "203.0.113.1",
	}))
	assert.Equal(t, "203.0.113.1", host)
}

func TestResolveClientAddrPrefersForwardedForOverTransportWhenNoRealIP(t *testing.T) {
	host, _ := ResolveClientAddr(req("10.0.0.1:5000", map[string]string{
		"X-Forwarded-For": "203.0.113.9, 10.1.1.1",
	}))
	assert.Equal(t, "203.0.113.9", host)
}

func TestResolveClientAddrCFConnectingIPWinsOverEverything(t *testing.T) {
	host, _ := ResolveClientAddr(req("10.0.0.1:5000", map[string]string{
		"X-Real-IP":        "203.0.113.1",
		"X-Forwarded-For":  "203.0.113.9",
		"CF-Connecting-IP": "198.51.100.1",
	}))
	assert.Equal(t, "198.51.100.1", host)
}

func TestResolveClientAddrPortChainIsIndependentOfHostChain(t *testing.T) {
	host, port := ResolveClientAddr(req("10.0.0.1:5000", map[string]string{
		"CF-Connecting-IP":  "198.51.100.1",
		"X-Forwarded-Port": "8443",
	}))
	assert.Equal(t, "198.51.100.1", host)
	assert.Equal(t, "8443", port)
}

func TestResolveClientAddrXRealPortWinsOverForwardedPort(t *testing.T) {
	_, port := ResolveClientAddr(req("10.0.0.1:5000", map[string]string{
		"X-Forwarded-Port": "8443",
		"X-Real-Port":      "9443",
	}))
	assert.Equal(t, "9443", port)
}
