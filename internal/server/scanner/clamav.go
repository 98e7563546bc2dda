package scanner

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// ClamAV scans content through a clamd daemon over TCP using the INSTREAM
// command: a zero-terminated command word, then length-prefixed chunks
// (4-byte big-endian), then a zero-length chunk, then a single-line reply
// ("stream: OK" or "stream: <name> FOUND").
type ClamAV struct {
	addr      string
	dialer    net.Dialer
	chunkSize int
}

// NewClamAV returns a scanner talking to clamd at addr (host:port).
func NewClamAV(addr string) *ClamAV {
	return &ClamAV{
		addr:      addr,
		dialer:    net.Dialer{Timeout: 10 * time.Second},
		chunkSize: 64 * 1024,
	}
}

func (c *ClamAV) Scan(ctx context.Context, r io.Reader) (Result, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Result{}, fmt.Errorf("failed to connect to clamd at %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return Result{}, fmt.Errorf("failed to send INSTREAM command: %w", err)
	}

	buf := make([]byte, c.chunkSize)
	var prefix [4]byte
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(prefix[:], uint32(n))
			if _, err := conn.Write(prefix[:]); err != nil {
				return Result{}, fmt.Errorf("failed to send chunk length: %w", err)
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return Result{}, fmt.Errorf("failed to send chunk: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Result{}, fmt.Errorf("failed to read content: %w", readErr)
		}
	}

	binary.BigEndian.PutUint32(prefix[:], 0)
	if _, err := conn.Write(prefix[:]); err != nil {
		return Result{}, fmt.Errorf("failed to send end of stream: %w", err)
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read clamd reply: %w", err)
	}

	return parseReply(string(reply))
}

func parseReply(reply string) (Result, error) {
	reply = strings.TrimRight(reply, "\x00\n ")
	switch {
	case strings.HasSuffix(reply, "OK"):
		return Result{Verdict: VerdictClean}, nil
	case strings.HasSuffix(reply, "FOUND"):
		// "stream: Eicar-Test-Signature FOUND"
		threat := strings.TrimSuffix(reply, " FOUND")
		if i := strings.LastIndex(threat, ": "); i >= 0 {
			threat = threat[i+2:]
		}
		return Result{Verdict: VerdictInfected, Threat: threat}, nil
	default:
		return Result{}, fmt.Errorf("unexpected clamd reply: %q", reply)
	}
}

// HealthCheck sends PING and expects PONG.
func (c *ClamAV) HealthCheck(ctx context.Context) bool {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return false
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte("zPING\x00")); err != nil {
		return false
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return false
	}
	return strings.Contains(string(reply), "PONG")
}
