package ipc

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rubiojr/theme-switcher/pkg/broadcast"
	"github.com/rubiojr/theme-switcher/pkg/metrics"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// QuitCommand closes the sending connection.
const QuitCommand = "quit"

// serveConn runs one client until EOF, quit, a write failure, a lag
// disconnect or channel closure.
func (s *Server) serveConn(conn net.Conn) {
	id := uuid.NewString()
	defer func() { _ = conn.Close() }()

	// Subscribe before reading the cell: a change published in between is
	// then delivered (possibly twice) instead of being lost.
	sub, err := s.ch.Subscribe()
	if err != nil {
		s.logger.Debugf("conn %s: %v", id, err)
		return
	}
	defer s.ch.Unsubscribe(sub)

	s.conns.Add(1)
	metrics.IPCConnections.Inc()
	defer func() {
		s.conns.Add(-1)
		metrics.IPCConnections.Dec()
	}()
	s.logger.Debugf("conn %s: connected", id)

	if t, ok := s.cell.Get(); ok {
		if err := s.writeTheme(conn, t); err != nil {
			s.logger.Debugf("conn %s: initial write failed: %v", id, err)
			return
		}
	}

	done := make(chan struct{})
	defer close(done)
	lines := readLines(conn, done)

	for {
		select {
		case t, ok := <-sub.C():
			if !ok {
				s.logger.Debugf("conn %s: channel closed", id)
				return
			}
			if missed := sub.Lagged(); missed > 0 {
				metrics.IPCLagged.Add(float64(missed))
				if s.lagPolicy == LagDisconnect {
					s.logger.Warnf("conn %s: lagged by %d events, disconnecting", id, missed)
					return
				}
				s.logger.Debugf("conn %s: lagged by %d events, resyncing", id, missed)
				t = newest(sub, t)
			}
			if err := s.writeTheme(conn, t); err != nil {
				s.logger.Debugf("conn %s: write failed: %v", id, err)
				return
			}
		case line, ok := <-lines:
			if !ok {
				s.logger.Debugf("conn %s: peer disconnected", id)
				return
			}
			if strings.TrimSpace(line) == QuitCommand {
				s.logger.Debugf("conn %s: quit", id)
				return
			}
		}
	}
}

func (s *Server) writeTheme(conn net.Conn, t theme.Theme) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_, err := conn.Write([]byte(t.String() + "\n"))
	_ = conn.SetWriteDeadline(time.Time{})
	return err
}

// readLines streams lines from conn until EOF or a read error, then closes
// the returned channel.
func readLines(conn net.Conn, done <-chan struct{}) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-done:
				return
			}
		}
	}()
	return out
}

// newest drains whatever is pending on sub and returns the last theme seen.
func newest(sub *broadcast.Subscriber, t theme.Theme) theme.Theme {
	for {
		select {
		case next, ok := <-sub.C():
			if !ok {
				return t
			}
			t = next
		default:
			return t
		}
	}
}
