package bcilog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bcilog/bcilog/packets"
)

// SimulatedBoard is a BoardSession that synthesizes a Cyton+Daisy stream and
// sends it over UDP, optionally dropping packets.
type SimulatedBoard struct {
	Host      string  // destination host (default 127.0.0.1)
	PairRate  float64 // logical samples per second (default the configured sample rate)
	DropEvery int     // drop every DropEvery-th physical packet; 0 drops none
	MaxPairs  int     // stop sending after this many logical samples; 0 is unlimited

	lock       sync.Mutex
	configured bool
	sampleRate int
	abort      chan struct{}
	done       chan struct{}
	sent       atomic.Int64
	dropped    atomic.Int64
}

// Configure validates the request against the fixed hardware profile.
func (sb *SimulatedBoard) Configure(ctx context.Context, sampleRate int, gains []int) error {
	if err := ValidateProfile(sampleRate, gains); err != nil {
		return NewControlError(Rejected, "configure", err)
	}
	sb.lock.Lock()
	defer sb.lock.Unlock()
	sb.configured = true
	sb.sampleRate = sampleRate
	return nil
}

// StartStream begins sending packets to port on the destination host.
func (sb *SimulatedBoard) StartStream(ctx context.Context, port int) error {
	sb.lock.Lock()
	defer sb.lock.Unlock()
	if !sb.configured {
		return NewControlError(Rejected, "start stream", errors.New("board is not configured"))
	}
	if sb.abort != nil {
		return NewControlError(Rejected, "start stream", errors.New("already streaming"))
	}
	host := sb.Host
	if host == "" {
		host = "127.0.0.1"
	}
	conn, err := net.Dial("udp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return NewControlError(Unreachable, "start stream", err)
	}
	rate := sb.PairRate
	if rate <= 0 {
		rate = float64(sb.sampleRate)
	}
	sb.abort = make(chan struct{})
	sb.done = make(chan struct{})
	go sb.stream(conn, rate, sb.abort, sb.done)
	return nil
}

// StopStream stops sending and waits for the sender to finish.
func (sb *SimulatedBoard) StopStream(ctx context.Context) error {
	sb.lock.Lock()
	abort, done := sb.abort, sb.done
	sb.abort, sb.done = nil, nil
	sb.lock.Unlock()
	if abort == nil {
		return nil
	}
	close(abort)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return NewControlError(Unreachable, "stop stream", ctx.Err())
	}
}

// Sent returns the number of physical packets sent.
func (sb *SimulatedBoard) Sent() int64 { return sb.sent.Load() }

// Dropped returns the number of physical packets deliberately not sent.
func (sb *SimulatedBoard) Dropped() int64 { return sb.dropped.Load() }

// Done returns a channel closed once MaxPairs have been sent, or nil if the
// board is not streaming.
func (sb *SimulatedBoard) Done() <-chan struct{} {
	sb.lock.Lock()
	defer sb.lock.Unlock()
	return sb.done
}

// SimulatedValue is the value the simulated board reports for channel ch
// (0-15) of logical sample pair.
func SimulatedValue(pair, ch int) int32 {
	v := int32((pair*16+ch)%(2*packets.MaxChannelValue)) - packets.MaxChannelValue
	if ch%2 == 1 {
		v = -v
	}
	return v
}

// stream sends pairs in 10 ms bursts so the rate holds without a fine timer.
func (sb *SimulatedBoard) stream(conn net.Conn, rate float64, abort <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()

	const burst = 10 * time.Millisecond
	ticker := time.NewTicker(burst)
	defer ticker.Stop()
	start := time.Now()
	buf := make([]byte, packets.PACKETLEN)
	pair, npacket := 0, 0

	send := func(p *packets.Packet) {
		npacket++
		if sb.DropEvery > 0 && npacket%sb.DropEvery == 0 {
			sb.dropped.Add(1)
			return
		}
		p.Put(buf)
		if _, err := conn.Write(buf); err != nil {
			ProblemLogger.Printf("Simulated board send error: %v\n", err)
			return
		}
		sb.sent.Add(1)
	}

	for {
		want := int(rate * time.Since(start).Seconds())
		for ; pair < want; pair++ {
			if sb.MaxPairs > 0 && pair >= sb.MaxPairs {
				return
			}
			var primary, daisy [packets.NCHAN]int32
			for c := 0; c < packets.NCHAN; c++ {
				primary[c] = SimulatedValue(pair, c)
				daisy[c] = SimulatedValue(pair, c+packets.NCHAN)
			}
			send(packets.NewPacket(uint8(2*pair), primary))
			send(packets.NewPacket(uint8(2*pair+1), daisy))
		}
		select {
		case <-abort:
			return
		case <-ticker.C:
		}
	}
}
