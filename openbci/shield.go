// Package openbci controls an OpenBCI Cyton+Daisy board through the HTTP API
// of its WiFi shield.
package openbci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bcilog/bcilog"
	"github.com/bcilog/bcilog/bcifile"
)

// BoardInfo is the shield's answer to GET /board.
type BoardInfo struct {
	BoardConnected bool   `json:"board_connected"`
	BoardType      string `json:"board_type"`
	NumChannels    int    `json:"num_channels"`
}

// Shield is a bcilog.BoardSession talking to a WiFi shield.
type Shield struct {
	Address string        // host or host:port of the shield
	Latency time.Duration // how long the shield may batch packets
	Client  *http.Client
}

var _ bcilog.BoardSession = (*Shield)(nil)

// NewShield returns a Shield with a 5 s request timeout.
func NewShield(address string, latency time.Duration) *Shield {
	return &Shield{
		Address: address,
		Latency: latency,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Board fetches the board description. A reply that is not a board
// description (a captive portal, say) is Unreachable.
func (s *Shield) Board(ctx context.Context) (*BoardInfo, error) {
	body, err := s.do(ctx, http.MethodGet, "board", nil)
	if err != nil {
		return nil, err
	}
	info := new(BoardInfo)
	if err := json.Unmarshal(body, info); err != nil {
		return nil, bcilog.NewControlError(bcilog.Unreachable, "board",
			fmt.Errorf("could not parse /board reply %q: %w", body, err))
	}
	return info, nil
}

// CheckBoard verifies that a 16-channel daisy board is attached.
func (s *Shield) CheckBoard(ctx context.Context) error {
	info, err := s.Board(ctx)
	if err != nil {
		return err
	}
	switch {
	case !info.BoardConnected:
		return rejected("configure", errors.New("no board is connected to the shield"))
	case info.BoardType != "daisy":
		return rejected("configure", fmt.Errorf("board type is %q, want \"daisy\"", info.BoardType))
	case info.NumChannels != bcifile.NCHAN:
		return rejected("configure", fmt.Errorf("board has %d channels, want %d", info.NumChannels, bcifile.NCHAN))
	}
	return nil
}

// SendCommand passes a raw board command through the shield.
func (s *Shield) SendCommand(ctx context.Context, cmd string) error {
	_, err := s.do(ctx, http.MethodPost, "command", map[string]string{"command": cmd})
	return err
}

// Configure checks the board, then sends the sample rate, board mode and
// channel settings commands. Requests outside the hardware profile are
// rejected before anything is sent.
func (s *Shield) Configure(ctx context.Context, sampleRate int, gains []int) error {
	cmds, err := bcilog.ConfigureCommands(sampleRate, gains)
	if err != nil {
		return rejected("configure", err)
	}
	if err := s.CheckBoard(ctx); err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := s.SendCommand(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// StartStream points the shield's raw UDP output at this host and starts streaming.
func (s *Shield) StartStream(ctx context.Context, port int) error {
	ip, err := LocalIPFor(s.host())
	if err != nil {
		return bcilog.NewControlError(bcilog.Unreachable, "start stream", err)
	}
	request := map[string]any{
		"ip":      ip.String(),
		"port":    port,
		"output":  "raw",
		"latency": s.Latency.Microseconds(),
	}
	if _, err := s.do(ctx, http.MethodPost, "udp", request); err != nil {
		return err
	}
	_, err = s.do(ctx, http.MethodGet, "stream/start", nil)
	return err
}

// StopStream stops the shield's stream.
func (s *Shield) StopStream(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, "stream/stop", nil)
	return err
}

func (s *Shield) host() string {
	if host, _, err := net.SplitHostPort(s.Address); err == nil {
		return host
	}
	return s.Address
}

// do performs one request. Transport failures are Unreachable; any status
// other than 200 is Rejected.
func (s *Shield) do(ctx context.Context, method, what string, payload any) ([]byte, error) {
	op := strings.ReplaceAll(what, "/", " ")
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, rejected(op, err)
		}
		body = bytes.NewReader(b)
	}
	url := fmt.Sprintf("http://%s/%s", s.Address, what)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, rejected(op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, bcilog.NewControlError(bcilog.Unreachable, op, err)
	}
	defer resp.Body.Close()
	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bcilog.NewControlError(bcilog.Unreachable, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, rejected(op, fmt.Errorf("error with %s request to %s: %d (%q)", method, what, resp.StatusCode, reply))
	}
	return reply, nil
}

func rejected(op string, err error) *bcilog.ControlError {
	return bcilog.NewControlError(bcilog.Rejected, op, err)
}

// LocalIPFor returns the local address the system would use to reach remote.
// No packets are sent: connecting a UDP socket only selects a route.
func LocalIPFor(remote string) (net.IP, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(remote, "9"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
