package bcilog

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bcilog/bcilog/bcifile"
	"github.com/bcilog/bcilog/internal/sessiondb"
)

// SessionConfig holds everything needed to run one acquisition session.
type SessionConfig struct {
	IngestAddr string // local UDP address to bind, e.g. ":5600"
	RcvBuf     int    // requested socket receive buffer in bytes
	SampleRate int
	Gains      []int // one per channel

	Dir      string // output directory
	Prefix   string // output file name prefix
	Filename string // explicit output file; overrides Dir and Prefix

	Writer bcifile.WriterConfig
	Ingest IngestConfig

	StopTimeout time.Duration // budget for the stop-stream command after ingest ends
}

// DefaultGains returns the board's default gain (x24) for every channel.
func DefaultGains() []int {
	gains := make([]int, bcifile.NCHAN)
	for i := range gains {
		gains[i] = 24
	}
	return gains
}

// Session runs a board, an IngestLoop and a bcifile.Writer from start to stop.
type Session struct {
	ID        ulid.ULID
	Config    SessionConfig
	Board     BoardSession
	BoardName string
	Publisher *StatusPublisher      // optional
	DB        *sessiondb.Connection // optional
	Filename  string

	loop     *IngestLoop
	loopLock sync.Mutex
}

// NewSession creates a Session with a fresh ID.
func NewSession(board BoardSession, config SessionConfig) *Session {
	if config.SampleRate == 0 {
		config.SampleRate = bcifile.SAMPLERATE
	}
	if config.Gains == nil {
		config.Gains = DefaultGains()
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 5 * time.Second
	}
	s := &Session{ID: ulid.Make(), Config: config, Board: board, BoardName: fmt.Sprintf("%T", board)}
	s.Filename = s.outputFilename()
	return s
}

func (s *Session) outputFilename() string {
	if s.Config.Filename != "" {
		return s.Config.Filename
	}
	prefix := s.Config.Prefix
	if prefix == "" {
		prefix = "bcilog"
	}
	return filepath.Join(s.Config.Dir, fmt.Sprintf("%s_%s.bci", prefix, s.ID))
}

// Stats returns the ingest statistics so far (zero before ingest starts).
func (s *Session) Stats() Stats {
	s.loopLock.Lock()
	loop := s.loop
	s.loopLock.Unlock()
	if loop == nil {
		return Stats{}
	}
	return loop.Stats()
}

// Run configures the board, opens the socket and the output file, starts the
// stream and ingests until ctx is cancelled or a fatal error occurs. Failures
// to configure or start the board are returned as *ControlError before any
// data is written.
func (s *Session) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	if err := s.Board.Configure(ctx, s.Config.SampleRate, s.Config.Gains); err != nil {
		return Stats{}, err
	}

	conn, err := ListenUDP(s.Config.IngestAddr, s.Config.RcvBuf)
	if err != nil {
		return Stats{}, fmt.Errorf("opening ingest socket: %w", err)
	}
	defer conn.Close()

	writer, err := bcifile.Create(s.Filename, s.Config.Writer)
	if err != nil {
		return Stats{}, fmt.Errorf("creating output file: %w", err)
	}

	msg := &sessiondb.SessionMessage{
		ID:         s.ID.String(),
		Hostname:   Build.Host,
		Version:    Build.Version,
		Githash:    Build.Githash,
		Board:      s.BoardName,
		SampleRate: s.Config.SampleRate,
		Nchannels:  bcifile.NCHAN,
		Start:      start,
	}
	s.DB.RecordSession(msg)

	icfg := s.Config.Ingest
	onStats := icfg.OnStats
	icfg.OnStats = func(st Stats) {
		s.Publisher.Publish(TagStats, st)
		if onStats != nil {
			onStats(st)
		}
	}
	loop := NewIngestLoop(conn, writer, icfg)
	s.loopLock.Lock()
	s.loop = loop
	s.loopLock.Unlock()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	if err := s.Board.StartStream(ctx, port); err != nil {
		writer.Close()
		os.Remove(s.Filename)
		s.finish(msg, Stats{}, err)
		return Stats{}, err
	}
	UpdateLogger.Printf("Session %s: streaming to UDP port %d, writing %s\n", s.ID, port, s.Filename)
	s.Publisher.Publish(TagSession, map[string]any{"ID": s.ID.String(), "Running": true, "Filename": s.Filename})

	runErr := loop.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), s.Config.StopTimeout)
	defer cancel()
	if err := s.Board.StopStream(stopCtx); err != nil {
		ProblemLogger.Printf("Session %s: %v\n", s.ID, err)
	}

	closeErr := writer.Close()
	if runErr == nil {
		runErr = closeErr
	}
	stats := loop.Stats()
	stats.Records = writer.Records()

	s.recordFile(writer, start)
	s.finish(msg, stats, runErr)
	return stats, runErr
}

func (s *Session) finish(msg *sessiondb.SessionMessage, stats Stats, err error) {
	msg.End = time.Now()
	msg.Packets = stats.Packets
	msg.Malformed = stats.Malformed
	msg.MissingPackets = stats.MissingPackets
	msg.Partial = stats.Partial
	msg.Samples = stats.Samples
	msg.Records = stats.Records
	msg.Outcome = "ok"
	if err != nil {
		msg.Outcome = err.Error()
	}
	s.DB.FinishSession(msg)

	var we *bcifile.WriteError
	if errors.As(err, &we) {
		UpdateLogger.Printf("Session %s ended by write failure; %s is valid through %d records (%d bytes)\n",
			s.ID, s.Filename, we.Records, bcifile.HEADERLEN+we.Records*bcifile.RECORDLEN)
	}
	UpdateLogger.Printf("Session %s finished (%s): %s\n", s.ID, msg.Outcome, stats)
	s.Publisher.Publish(TagSession, map[string]any{"ID": s.ID.String(), "Running": false, "Outcome": msg.Outcome, "Stats": stats})
}

func (s *Session) recordFile(w *bcifile.Writer, start time.Time) {
	if !s.DB.IsConnected() {
		return
	}
	size, sum, err := fileSizeAndSHA256(w.Filename)
	if err != nil {
		ProblemLogger.Printf("Could not checksum %s: %v\n", w.Filename, err)
	}
	s.DB.RecordFile(&sessiondb.FileMessage{
		SessionID: s.ID.String(),
		Filename:  w.Filename,
		Filetype:  "bci",
		Start:     start,
		End:       time.Now(),
		Records:   w.Records(),
		Size:      size,
		SHA256:    sum,
	})
}

func fileSizeAndSHA256(fname string) (int64, string, error) {
	f, err := os.Open(fname)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return n, "", err
	}
	return n, fmt.Sprintf("%x", h.Sum(nil)), nil
}
