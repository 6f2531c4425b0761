package httpparse_test

import (
	"testing"

	"github.com/reactorweb/httpd/httpparse"
	"github.com/reactorweb/httpd/netconn"
)

func feed(c *netconn.Conn, data string) {
	n := copy(c.ReadBuf[c.Filled:], data)
	c.Filled += n
}

func TestParseSimpleGet(t *testing.T) {
	c := netconn.New(3, nil)
	feed(c, "GET /judge.html HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n")

	result := httpparse.Parse(c)
	if result != httpparse.GetRequest {
		t.Fatalf("Parse() = %v, want GetRequest", result)
	}
	if c.URL != "/judge.html" {
		t.Errorf("URL = %q, want /judge.html", c.URL)
	}
	if c.Host != "example.com" {
		t.Errorf("Host = %q, want example.com", c.Host)
	}
	if !c.KeepAlive {
		t.Error("KeepAlive = false, want true")
	}
}

func TestParseRootRewrittenToJudge(t *testing.T) {
	c := netconn.New(3, nil)
	feed(c, "GET / HTTP/1.1\r\n\r\n")

	if got := httpparse.Parse(c); got != httpparse.GetRequest {
		t.Fatalf("Parse() = %v, want GetRequest", got)
	}
	if c.URL != "/judge.html" {
		t.Errorf("URL = %q, want /judge.html", c.URL)
	}
}

func TestParseStripsSchemeAndHost(t *testing.T) {
	c := netconn.New(3, nil)
	feed(c, "GET http://example.com/0 HTTP/1.1\r\n\r\n")

	if got := httpparse.Parse(c); got != httpparse.GetRequest {
		t.Fatalf("Parse() = %v, want GetRequest", got)
	}
	if c.URL != "/0" {
		t.Errorf("URL = %q, want /0", c.URL)
	}
}

func TestParseIncompleteRequestAwaitsMoreBytes(t *testing.T) {
	c := netconn.New(3, nil)
	feed(c, "GET /judge.html HTTP/1.1\r\n")

	if got := httpparse.Parse(c); got != httpparse.NoRequest {
		t.Fatalf("Parse() = %v, want NoRequest", got)
	}
}

func TestParseBadMethodIsBadRequest(t *testing.T) {
	c := netconn.New(3, nil)
	feed(c, "DELETE /judge.html HTTP/1.1\r\n\r\n")

	if got := httpparse.Parse(c); got != httpparse.BadRequest {
		t.Fatalf("Parse() = %v, want BadRequest", got)
	}
}

func TestParseWrongVersionIsBadRequest(t *testing.T) {
	c := netconn.New(3, nil)
	feed(c, "GET /judge.html HTTP/1.0\r\n\r\n")

	if got := httpparse.Parse(c); got != httpparse.BadRequest {
		t.Fatalf("Parse() = %v, want BadRequest", got)
	}
}

func TestParsePostWithBody(t *testing.T) {
	c := netconn.New(3, nil)
	body := "user=alice&password=hunter2"
	feed(c, "POST /2 HTTP/1.1\r\nContent-Length: "+itoa(len(body))+"\r\n\r\n"+body)

	if got := httpparse.Parse(c); got != httpparse.GetRequest {
		t.Fatalf("Parse() = %v, want GetRequest", got)
	}
	if string(c.Body) != body {
		t.Errorf("Body = %q, want %q", c.Body, body)
	}
}

func TestParsePostBodyArrivesInSecondChunk(t *testing.T) {
	c := netconn.New(3, nil)
	feed(c, "POST /3 HTTP/1.1\r\nContent-Length: 9\r\n\r\n")

	if got := httpparse.Parse(c); got != httpparse.NoRequest {
		t.Fatalf("Parse() with no body yet = %v, want NoRequest", got)
	}

	feed(c, "a=1&b=22")
	if got := httpparse.Parse(c); got != httpparse.NoRequest {
		t.Fatalf("Parse() with short body = %v, want NoRequest", got)
	}

	feed(c, "3")
	if got := httpparse.Parse(c); got != httpparse.GetRequest {
		t.Fatalf("Parse() with full body = %v, want GetRequest", got)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
