package bcilog

import (
	"log"
	"os"
	"time"
)

// Portnumbers structs can contain all port numbers used by bcilog.
type Portnumbers struct {
	Ingest int // UDP port the board streams to
	Status int // TCP port of the ZMQ status publisher
}

// Ports globally holds all port numbers used by bcilog.
var Ports Portnumbers

func setPortnumbers(base int) {
	Ports.Ingest = base
	Ports.Status = base + 1
}

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Gitdate string
	Date    string
	Host    string
	Summary string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.3.0",
	Githash: "no git hash computed",
	Date:    "no build date computed",
}

// StartTime is a global holding the time init() was run
var StartTime time.Time

// ProblemLogger will log warning messages (bad packets, receive errors, I/O failures).
var ProblemLogger *log.Logger

// UpdateLogger will log session lifecycle events and periodic statistics.
var UpdateLogger *log.Logger

func init() {
	setPortnumbers(5600)
	StartTime = time.Now()

	// The bcilog main program will override these, but at least initialize with sensible values
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
	UpdateLogger = log.New(os.Stdout, "", log.LstdFlags)
}
