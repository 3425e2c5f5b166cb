package main

import (
	"flag"
	"time"

	"github.com/schollz/dirshare"
)

func main() {
	var debug bool
	var dir, port, passcode string
	var poll int
	flag.BoolVar(&debug, "debug", false, "set debug mode")
	flag.StringVar(&dir, "dir", ".", "directory to share")
	flag.StringVar(&port, "port", "8045", "port for running server")
	flag.StringVar(&passcode, "code", "123", "passcode for peer discovery")
	flag.IntVar(&poll, "poll", 2, "poll interval in seconds")
	flag.Parse()

	if debug {
		dirshare.SetLogLevel("debug")
	} else {
		dirshare.SetLogLevel("info")
	}

	ds, err := dirshare.New(dir, port, passcode)
	if err != nil {
		panic(err)
	}
	ds.PollInterval = time.Duration(poll) * time.Second

	if err = ds.Watch(); err != nil {
		panic(err)
	}
}
