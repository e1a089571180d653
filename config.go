package bcilog

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/bcilog/bcilog/bcifile"
)

// Config is the full program configuration, as read by viper.
type Config struct {
	BoardAddress string        // host[:port] of the WiFi shield
	Latency      time.Duration // shield packet latency
	Session      SessionConfig
	StatusPort   int // 0 disables the ZMQ status publisher
	DBEnable     bool
	DBAddr       string
}

// SetDefaults registers the default value of every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("Verbose", false)
	v.SetDefault("board.address", "")
	v.SetDefault("board.latency", "10ms")
	v.SetDefault("board.gains", DefaultGains())
	v.SetDefault("ingest.port", Ports.Ingest)
	v.SetDefault("ingest.rcvbuf", 1024*1024)
	v.SetDefault("ingest.read_timeout", "100ms")
	v.SetDefault("ingest.partner_timeout", "50ms")
	v.SetDefault("ingest.primary_parity", "auto")
	v.SetDefault("ingest.stats_interval", "1s")
	v.SetDefault("writer.dir", ".")
	v.SetDefault("writer.prefix", "bcilog")
	v.SetDefault("writer.file", "")
	v.SetDefault("writer.queue_depth", 4*bcifile.SAMPLERATE)
	v.SetDefault("writer.buffer_size", 64*1024)
	v.SetDefault("writer.flush_interval", "1s")
	v.SetDefault("status.port", Ports.Status)
	v.SetDefault("db.enable", false)
	v.SetDefault("db.addr", "localhost:9000")
}

// ReadConfig converts the values held by v into a Config.
func ReadConfig(v *viper.Viper) (Config, error) {
	var c Config
	parity, err := ParseParity(v.GetString("ingest.primary_parity"))
	if err != nil {
		return c, err
	}
	gains := v.GetIntSlice("board.gains")
	if err := ValidateProfile(bcifile.SAMPLERATE, gains); err != nil {
		return c, fmt.Errorf("board.gains: %w", err)
	}
	// The shield holds packets for up to board.latency, so a daisy half may
	// trail its primary by that much.
	latency, partner := v.GetDuration("board.latency"), v.GetDuration("ingest.partner_timeout")
	if partner <= latency {
		return c, fmt.Errorf("ingest.partner_timeout (%v) must exceed board.latency (%v)", partner, latency)
	}
	if v.GetInt("writer.queue_depth") <= 0 {
		return c, fmt.Errorf("writer.queue_depth must be positive, got %d", v.GetInt("writer.queue_depth"))
	}

	c.BoardAddress = v.GetString("board.address")
	c.Latency = latency
	c.StatusPort = v.GetInt("status.port")
	c.DBEnable = v.GetBool("db.enable")
	c.DBAddr = v.GetString("db.addr")
	c.Session = SessionConfig{
		IngestAddr: fmt.Sprintf(":%d", v.GetInt("ingest.port")),
		RcvBuf:     v.GetInt("ingest.rcvbuf"),
		SampleRate: bcifile.SAMPLERATE,
		Gains:      gains,
		Dir:        v.GetString("writer.dir"),
		Prefix:     v.GetString("writer.prefix"),
		Filename:   v.GetString("writer.file"),
		Writer: bcifile.WriterConfig{
			QueueDepth:    v.GetInt("writer.queue_depth"),
			BufferSize:    v.GetInt("writer.buffer_size"),
			FlushInterval: v.GetDuration("writer.flush_interval"),
		},
		Ingest: IngestConfig{
			ReadTimeout:    v.GetDuration("ingest.read_timeout"),
			PartnerTimeout: partner,
			PrimaryParity:  parity,
			StatsInterval:  v.GetDuration("ingest.stats_interval"),
		},
	}
	return c, nil
}
