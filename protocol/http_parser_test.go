package protocol_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/protocol"
)

// parsed is a comparable copy of the views in an HTTPMessage.
type parsed struct {
	Method, URI, Proto, Query, Reason string
	Status                            int
	Headers                           []string
	Body                              string
	Whole                             string
}

func snapshot(m *api.HTTPMessage) parsed {
	p := parsed{
		Method: m.Method.String(),
		URI:    m.URI.String(),
		Proto:  m.Proto.String(),
		Query:  m.QueryString.String(),
		Reason: m.Reason.String(),
		Status: m.StatusCode,
		Body:   string(m.Body),
		Whole:  string(m.Whole),
	}
	for _, h := range m.Headers.All() {
		p.Headers = append(p.Headers, h.Name.String()+": "+h.Value.String())
	}
	return p
}

func TestParseHTTPRequest(t *testing.T) {
	raw := "GET /foo/bar?param1=val1&param2=val2 HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"X-Empty:\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"hello"
	var msg api.HTTPMessage
	n, err := protocol.ParseHTTP([]byte(raw), &msg)
	if err != nil {
		t.Fatalf("ParseHTTP: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	want := parsed{
		Method:  "GET",
		URI:     "/foo/bar",
		Proto:   "HTTP/1.1",
		Query:   "param1=val1&param2=val2",
		Headers: []string{"Host: example.com", "X-Empty: ", "Content-Length: 5"},
		Body:    "hello",
		Whole:   raw,
	}
	if diff := cmp.Diff(want, snapshot(&msg)); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
	if msg.IsReply() {
		t.Error("request reported as reply")
	}
	if v, ok := msg.FindHeader("content-length"); !ok || v.String() != "5" {
		t.Errorf("FindHeader = %q, %v", v, ok)
	}
}

func TestParseHTTPQueryVariable(t *testing.T) {
	var msg api.HTTPMessage
	raw := []byte("GET /foo/bar?param1=val1&param2=val2 HTTP/1.1\r\n\r\n")
	if n, err := protocol.ParseHTTP(raw, &msg); err != nil || n != len(raw) {
		t.Fatalf("ParseHTTP = %d, %v", n, err)
	}
	if msg.URI.String() != "/foo/bar" || msg.QueryString.String() != "param1=val1&param2=val2" {
		t.Fatalf("uri %q query %q", msg.URI, msg.QueryString)
	}
	dst := make([]byte, 16)
	n := protocol.GetVariable(msg.QueryString, "param2", dst)
	if n < 0 || string(dst[:n]) != "val2" {
		t.Fatalf("GetVariable = %d %q", n, dst[:max(n, 0)])
	}
}

func TestParseHTTPReply(t *testing.T) {
	raw := "HTTP/1.1 404 Not Found\r\nContent-Length: 3\r\n\r\nnopeHTTP/1.1"
	var msg api.HTTPMessage
	n, err := protocol.ParseHTTP([]byte(raw), &msg)
	if err != nil {
		t.Fatal(err)
	}
	want := parsed{
		Proto:   "HTTP/1.1",
		Status:  404,
		Reason:  "Not Found",
		Headers: []string{"Content-Length: 3"},
		Body:    "nop",
		Whole:   raw[:n],
	}
	if diff := cmp.Diff(want, snapshot(&msg)); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	if !msg.IsReply() {
		t.Error("reply not recognized")
	}
}

// Every partition of the stream must produce the same message as a single
// call over the whole buffer.
func TestParseHTTPChunkBoundaryIndependence(t *testing.T) {
	inputs := []string{
		"POST /submit?x=1 HTTP/1.1\r\nHost: a\r\nContent-Length: 11\r\n\r\nhello world",
		"PUT /up HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n",
		"GET / HTTP/1.0\r\n\r\n",
	}
	for _, raw := range inputs {
		var whole api.HTTPMessage
		n, err := protocol.ParseHTTP([]byte(raw), &whole)
		if err != nil || n != len(raw) {
			t.Fatalf("%q: whole parse = %d, %v", raw, n, err)
		}
		want := snapshot(&whole)

		for split := 1; split < len(raw); split++ {
			// A connection layer appends each chunk to its receive buffer
			// and retries from the start of the unconsumed bytes.
			buf := []byte(raw[:split])
			var msg api.HTTPMessage
			n, err := protocol.ParseHTTP(buf, &msg)
			if err != nil || n != 0 {
				t.Fatalf("%q split %d: prefix parse = %d, %v", raw, split, n, err)
			}
			buf = append(buf, raw[split:]...)
			n, err = protocol.ParseHTTP(buf, &msg)
			if err != nil || n != len(raw) {
				t.Fatalf("%q split %d: completed parse = %d, %v", raw, split, n, err)
			}
			if diff := cmp.Diff(want, snapshot(&msg)); diff != "" {
				t.Fatalf("%q split %d (-whole +split):\n%s", raw, split, diff)
			}
		}
	}
}

func TestParseHTTPConsumedIsNextMessageOffset(t *testing.T) {
	first := "POST /a HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc"
	second := "GET /b HTTP/1.1\r\n\r\n"
	buf := []byte(first + second)

	var msg api.HTTPMessage
	n, err := protocol.ParseHTTP(buf, &msg)
	if err != nil || n != len(first) {
		t.Fatalf("first parse = %d, %v; want %d", n, err, len(first))
	}
	n2, err := protocol.ParseHTTP(buf[n:], &msg)
	if err != nil || n2 != len(second) {
		t.Fatalf("second parse = %d, %v", n2, err)
	}
	if msg.URI.String() != "/b" {
		t.Fatalf("second uri %q", msg.URI)
	}
}

func TestParseHTTPChunkedBody(t *testing.T) {
	body := "4;ext=1\r\nWiki\r\n5\r\npedia\r\n0\r\nTrailer: x\r\n\r\n"
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: gzip, Chunked\r\nContent-Length: 2\r\n\r\n" + body
	var msg api.HTTPMessage
	n, err := protocol.ParseHTTP([]byte(raw+"GET"), &msg)
	if err != nil || n != len(raw) {
		t.Fatalf("ParseHTTP = %d, %v; want %d", n, err, len(raw))
	}
	if string(msg.Body) != body {
		t.Fatalf("body %q", msg.Body)
	}
	payload, err := protocol.DecodeChunked(msg.Body)
	if err != nil || string(payload) != "Wikipedia" {
		t.Fatalf("DecodeChunked = %q, %v", payload, err)
	}
}

func TestParseHTTPHeaderLimit(t *testing.T) {
	build := func(n int) []byte {
		var b strings.Builder
		b.WriteString("GET / HTTP/1.1\r\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "X-H%d: v\r\n", i)
		}
		b.WriteString("\r\n")
		return []byte(b.String())
	}
	var msg api.HTTPMessage
	raw := build(protocol.MaxHTTPHeaders)
	if n, err := protocol.ParseHTTP(raw, &msg); err != nil || n != len(raw) {
		t.Fatalf("40 headers: %d, %v", n, err)
	}
	if msg.Headers.Len() != protocol.MaxHTTPHeaders {
		t.Fatalf("header count %d", msg.Headers.Len())
	}
	_, err := protocol.ParseHTTP(build(protocol.MaxHTTPHeaders+1), &msg)
	if !errors.Is(err, api.ErrMalformed) {
		t.Fatalf("41 headers: err = %v", err)
	}
}

func TestParseHTTPMalformed(t *testing.T) {
	cases := map[string]string{
		"no colon":          "GET / HTTP/1.1\r\nBroken\r\n\r\n",
		"empty name":        "GET / HTTP/1.1\r\n: v\r\n\r\n",
		"missing version":   "GET /\r\n\r\n",
		"bad version":       "GET / FTP/1.0\r\n\r\n",
		"trailing token":    "GET / HTTP/1.1 junk\r\n\r\n",
		"bad status":        "HTTP/1.1 2x0 OK\r\n\r\n",
		"short status":      "HTTP/1.1 20 OK\r\n\r\n",
		"bad length":        "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\n",
		"bad chunk size":    "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n",
		"chunk without end": "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n1\r\naXX0\r\n\r\n",
		"head too large":    "GET / HTTP/1.1\r\nX: " + strings.Repeat("a", protocol.MaxRequestSize),
	}
	for name, raw := range cases {
		var msg api.HTTPMessage
		n, err := protocol.ParseHTTP([]byte(raw), &msg)
		if !errors.Is(err, api.ErrMalformed) {
			t.Errorf("%s: got %d, %v; want malformed", name, n, err)
			continue
		}
		if api.Reason(err) == "" {
			t.Errorf("%s: malformed error without reason", name)
		}
	}
}

func TestParseHTTPIncomplete(t *testing.T) {
	cases := []string{
		"",
		"GET / HTTP/1.1\r\nHost: a\r\n",
		"POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nshort",
		"POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nab",
	}
	for _, raw := range cases {
		var msg api.HTTPMessage
		if n, err := protocol.ParseHTTP([]byte(raw), &msg); n != 0 || err != nil {
			t.Errorf("%q: got %d, %v; want incomplete", raw, n, err)
		}
	}
}

func TestParseHTTPWithLimits(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\n\r\n")
	var msg api.HTTPMessage
	_, err := protocol.ParseHTTPWithLimits(raw, &msg, protocol.Limits{MaxHeaders: 1})
	if !errors.Is(err, api.ErrMalformed) {
		t.Fatalf("header limit 1: %v", err)
	}
	_, err = protocol.ParseHTTPWithLimits(raw, &msg, protocol.Limits{MaxRequestSize: 16})
	if !errors.Is(err, api.ErrMalformed) {
		t.Fatalf("size limit 16: %v", err)
	}
}

func TestParseHTTPBodyLimit(t *testing.T) {
	cases := map[string]string{
		"huge length":       "POST / HTTP/1.1\r\nContent-Length: 999999999999999999\r\n\r\n",
		"length over limit": "POST / HTTP/1.1\r\nContent-Length: 65\r\n\r\n",
		"huge chunk":        "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nfffffffffffffff\r\n",
		"chunks over limit": "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n20\r\n" + strings.Repeat("a", 32) + "\r\n21\r\n",
	}
	lim := protocol.Limits{MaxBodySize: 64}
	for name, raw := range cases {
		var msg api.HTTPMessage
		n, err := protocol.ParseHTTPWithLimits([]byte(raw), &msg, lim)
		if !errors.Is(err, api.ErrTooLarge) || !errors.Is(err, api.ErrMalformed) {
			t.Errorf("%s: got %d, %v; want too large", name, n, err)
		}
	}

	raw := "POST / HTTP/1.1\r\nContent-Length: 64\r\n\r\n" + strings.Repeat("b", 64)
	var msg api.HTTPMessage
	if n, err := protocol.ParseHTTPWithLimits([]byte(raw), &msg, lim); n != len(raw) || err != nil {
		t.Fatalf("body at the limit: %d, %v", n, err)
	}
}

func TestParseHTTPReplyReasonWithSpaces(t *testing.T) {
	var msg api.HTTPMessage
	raw := "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
	if n, err := protocol.ParseHTTP([]byte(raw), &msg); n != len(raw) || err != nil {
		t.Fatalf("got %d, %v", n, err)
	}
	if msg.Reason.String() != "Not Found" || msg.Proto.String() != "HTTP/1.1" {
		t.Fatalf("reason %q proto %q", msg.Reason, msg.Proto)
	}
}
