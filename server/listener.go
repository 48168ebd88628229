package server

import (
	"net"
	"time"

	"github.com/bidfuse/bidfuse-server/metrics"
)

// tcpKeepAliveListener mirrors what net/http does inside ListenAndServe, since we
// serve from our own listener.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

// monitorableListener tracks the number of open connections on the main server.
type monitorableListener struct {
	net.Listener
	me *metrics.Metrics
}

type monitorableConnection struct {
	net.Conn
	me *metrics.Metrics
}

func (ln *monitorableListener) Accept() (net.Conn, error) {
	conn, err := ln.Listener.Accept()
	if err != nil {
		return nil, err
	}
	ln.me.RecordConnectionOpen()
	return &monitorableConnection{conn, ln.me}, nil
}

func (conn *monitorableConnection) Close() error {
	conn.me.RecordConnectionClose()
	return conn.Conn.Close()
}
