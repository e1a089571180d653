package sessiondb

import "time"

// The composite types used for messages to the ClickHouse database.

// SessionMessage is the information for the sessions table. A session is
// recorded once when it starts and again, with End and the counters filled
// in, when it finishes.
type SessionMessage struct {
	ID         string
	Hostname   string
	Version    string
	Githash    string
	Board      string
	SampleRate int
	Nchannels  int
	Start      time.Time
	End        time.Time

	Packets        int64
	Malformed      int64
	MissingPackets int64
	Partial        int64
	Samples        int64
	Records        int64
	Outcome        string // "ok", or the error that ended the session
}

// FileMessage is the information required to make an entry in the files table.
type FileMessage struct {
	SessionID string
	Filename  string
	Filetype  string
	Start     time.Time
	End       time.Time
	Records   int64
	Size      int64
	SHA256    string
}
