package proxy

import (
	"net"
	"testing"
	"time"
)

func TestListenTCP(t *testing.T) {
	t.Parallel()

	ln, err := ListenTCP("127.0.0.1:0", ListenOptions{
		KeepAlive: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	c, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ac, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer ac.Close()

	if _, ok := ac.(*net.TCPConn); !ok {
		t.Fatalf("accepted %T, want *net.TCPConn", ac)
	}
}

func TestListenTCPAddrInUse(t *testing.T) {
	t.Parallel()

	ln, err := ListenTCP("127.0.0.1:0", ListenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	if ln2, err := ListenTCP(ln.Addr().String(), ListenOptions{}); err == nil {
		_ = ln2.Close()
		t.Fatal("expected address in use error")
	}
}
