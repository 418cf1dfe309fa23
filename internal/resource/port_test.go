package resource

import (
	"net"
	"testing"
)

func TestProbePort_Free(t *testing.T) {
	// Find a port the OS considers free, release it, then probe it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	if err := ProbePort(port); err != nil {
		t.Errorf("Expected free port %d to probe clean, got %v", port, err)
	}
}

func TestProbePort_Taken(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	if err := ProbePort(port); err == nil {
		t.Errorf("Expected probe of taken port %d to fail", port)
	}
}
