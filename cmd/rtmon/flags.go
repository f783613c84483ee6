package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// ConnFlags select how a client command reaches the daemon: the control
// socket by default, the HTTP API when APIUrl is set.
type ConnFlags struct {
	Socket     string
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	LogFile    string
}

type SetFlags struct {
	ConnFlags
	PID     int32
	PIDFile string
	C       int32
	T       int32
}

type PIDFlags struct {
	ConnFlags
	PID     int32
	PIDFile string
}

type ListFlags struct {
	ConnFlags
	JSON bool
}

type TickFlags struct {
	Socket string
	C      int32
	T      int32
	Count  int
	// Work is how long each period spends busy before waiting again.
	Work time.Duration
}
