package bcilog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bcilog/bcilog/bcifile"
	"github.com/bcilog/bcilog/packets"
)

// RecordSink receives finished samples in emission order. *bcifile.Writer is
// the production RecordSink.
type RecordSink interface {
	Write(*bcifile.Sample) error
	Records() int64
}

// IngestConfig holds the tunables of an IngestLoop. Zero values select defaults.
type IngestConfig struct {
	ReadTimeout    time.Duration // longest block in one receive call (default 100 ms)
	PartnerTimeout time.Duration // how long a half waits for its partner (default 50 ms)
	PrimaryParity  Parity
	StatsInterval  time.Duration // period of stats reports (default 1 s)
	Clock          func() time.Time
	// OnStats, if not nil, is called from the loop with every periodic report
	// and once more when the loop ends.
	OnStats func(Stats)
}

const maxDatagram = 2048

// Malformed packets are logged this many times, then only every malformedLogEvery-th.
const (
	malformedLogFirst = 10
	malformedLogEvery = 1000
)

// IngestLoop receives datagrams and drives them through decoding, sequence
// tracking, channel merging and timestamping into a RecordSink. It runs on a
// single goroutine; only Stats and Stop may be called from others.
type IngestLoop struct {
	conn    net.PacketConn
	sink    RecordSink
	config  IngestConfig
	tracker SequenceTracker
	merger  *ChannelMerger
	stamper *Timestamper

	stats     Stats
	statsLock sync.Mutex

	stopOnce sync.Once
	stopping chan struct{}
}

// NewIngestLoop creates an IngestLoop reading conn and writing to sink.
func NewIngestLoop(conn net.PacketConn, sink RecordSink, config IngestConfig) *IngestLoop {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 100 * time.Millisecond
	}
	if config.PartnerTimeout <= 0 {
		config.PartnerTimeout = 50 * time.Millisecond
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &IngestLoop{
		conn:     conn,
		sink:     sink,
		config:   config,
		merger:   NewChannelMerger(config.PrimaryParity, config.PartnerTimeout),
		stamper:  NewTimestamper(config.Clock),
		stopping: make(chan struct{}),
	}
}

// Stop asks Run to finish. It closes the socket, which unblocks a pending receive.
func (il *IngestLoop) Stop() {
	il.stopOnce.Do(func() {
		close(il.stopping)
		if il.conn != nil {
			il.conn.Close()
		}
	})
}

func (il *IngestLoop) isStopping() bool {
	select {
	case <-il.stopping:
		return true
	default:
		return false
	}
}

// Stats returns a copy of the statistics so far.
func (il *IngestLoop) Stats() Stats {
	il.statsLock.Lock()
	defer il.statsLock.Unlock()
	return il.stats
}

// Run receives until ctx is cancelled, Stop is called, or the sink fails. A
// stop returns nil after the pending half (if any) is written as a partial
// sample. A sink failure (backpressure or a write error) is returned.
func (il *IngestLoop) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			il.Stop()
		case <-done:
		}
	}()

	err := il.receive()
	if err == nil {
		err = il.emit(il.merger.Drain())
	}
	if err != nil {
		ProblemLogger.Printf("Ingest failed: %v. File is valid through record %d\n", err, il.sink.Records())
	}
	il.report()
	return err
}

func (il *IngestLoop) receive() error {
	buf := make([]byte, maxDatagram)
	nextReport := il.config.Clock().Add(il.config.StatsInterval)
	for {
		if il.isStopping() {
			return nil
		}
		if err := il.conn.SetReadDeadline(time.Now().Add(il.config.ReadTimeout)); err != nil && !il.isStopping() {
			ProblemLogger.Printf("Could not set UDP read deadline: %v\n", err)
		}
		n, _, err := il.conn.ReadFrom(buf)
		now := il.config.Clock()
		if err != nil {
			var nerr net.Error
			switch {
			case il.isStopping() || errors.Is(err, net.ErrClosed):
				return nil
			case errors.As(err, &nerr) && nerr.Timeout():
			default:
				il.statsLock.Lock()
				il.stats.RecvErrors++
				il.statsLock.Unlock()
				ProblemLogger.Printf("UDP receive error (continuing): %v\n", err)
			}
		} else if err := il.HandleDatagram(buf[:n], now); err != nil {
			return err
		}

		if err := il.emit(il.merger.Expire(now)); err != nil {
			return err
		}
		if !now.Before(nextReport) {
			il.report()
			nextReport = now.Add(il.config.StatsInterval)
		}
	}
}

// HandleDatagram runs one datagram through the pipeline. It returns an error
// only when the sink fails, which ends the session.
func (il *IngestLoop) HandleDatagram(data []byte, now time.Time) error {
	il.statsLock.Lock()
	il.stats.Packets++
	il.statsLock.Unlock()

	p, err := packets.Decode(data)
	if err != nil {
		il.statsLock.Lock()
		il.stats.Malformed++
		nbad := il.stats.Malformed
		il.statsLock.Unlock()
		if nbad <= malformedLogFirst || nbad%malformedLogEvery == 0 {
			ProblemLogger.Printf("Dropping malformed packet #%d: %v\n", nbad, err)
		}
		return nil
	}

	outcome := il.tracker.Observe(p.Counter)
	if outcome.Duplicate {
		il.statsLock.Lock()
		il.stats.Duplicates++
		il.statsLock.Unlock()
		return nil
	}
	if outcome.Gap > 0 {
		il.statsLock.Lock()
		il.stats.GapEvents++
		il.stats.MissingPackets += int64(outcome.Gap)
		il.statsLock.Unlock()
	}
	return il.emit(il.merger.Push(p, outcome.Gap, now))
}

func (il *IngestLoop) emit(samples []bcifile.Sample) error {
	for _, s := range samples {
		s = il.stamper.Stamp(s)
		err := il.sink.Write(&s)

		il.statsLock.Lock()
		if err == nil {
			il.stats.Samples++
			if s.Flags.Partial() {
				il.stats.Partial++
			}
		}
		il.stats.Rollovers = int64(il.stamper.Rollovers())
		il.statsLock.Unlock()

		if err != nil {
			return fmt.Errorf("writing sample: %w", err)
		}
	}
	return nil
}

func (il *IngestLoop) report() {
	il.statsLock.Lock()
	il.stats.Records = il.sink.Records()
	stats := il.stats
	il.statsLock.Unlock()

	UpdateLogger.Printf("Ingest: %s\n", stats)
	if il.config.OnStats != nil {
		il.config.OnStats(stats)
	}
}
