package dbpool_test

import (
	"testing"

	"github.com/reactorweb/httpd/dbpool"
)

// TestOpenFailsFastOnUnreachableHost exercises the Ping-on-construction path
// (spec.md §4.9: Open fails rather than returning a pool that can never
// acquire a handle) against a port nothing listens on.
func TestOpenFailsFastOnUnreachableHost(t *testing.T) {
	_, err := dbpool.Open(dbpool.Config{
		Host: "127.0.0.1", Port: 1, User: "u", Password: "p", Database: "d", Max: 4,
	})
	if err == nil {
		t.Fatal("Open against an unreachable host = nil error, want an error")
	}
}
