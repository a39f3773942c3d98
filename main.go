package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	rtdebug "runtime/debug"
	"syscall"
)

var (
	baseDir string

	directHost   string
	joinPassword string
	capturePath  string
	noDiscord    bool
)

var debug bool

func main() {
	flag.StringVar(&directHost, "host", "", "connect straight to host:port, skipping the directory")
	dirURL := flag.String("directory", "", "dashboard URL supplying the server list")
	name := flag.String("name", "", "player name")
	color := flag.Int("color", -1, "player color (0-7)")
	esp := flag.Bool("esp", false, "enable the ESP overlay at startup")
	flag.StringVar(&joinPassword, "password", "", "join password for private servers")
	flag.StringVar(&capturePath, "capture", "", "record accepted ticks to a pcap file")
	flag.BoolVar(&debug, "debug", false, "verbose/debug logging")
	flag.BoolVar(&noDiscord, "no-discord", false, "disable Discord rich presence")
	flag.Parse()

	baseDir = os.Getenv("PWD")
	if baseDir == "" {
		var err error
		if baseDir, err = os.Getwd(); err != nil {
			log.Fatalf("get working directory: %v", err)
		}
	}

	loadSettings()
	if *name != "" {
		gs.PlayerName = *name
	}
	if *color >= 0 && *color <= 7 {
		gs.Color = *color
	}
	if *esp {
		gs.ESPEnabled = true
	}
	if *dirURL != "" {
		gs.DirectoryURL = *dirURL
	}

	setupLogging(debug)
	defer func() {
		if r := recover(); r != nil {
			logError("panic: %v\n%s", r, rtdebug.Stack())
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess = newSession(defaultFieldConfig(), newTCPTransport())
	directory = newServerDirectory(gs.DirectoryURL)

	if capturePath != "" {
		tc, err := newTickCapture(capturePath)
		if err != nil {
			logError("open capture file: %v", err)
		} else {
			sess.capture = tc
			defer tc.Close()
		}
	}

	go directory.Run(ctx)
	go sendActionLoop(ctx)
	if !noDiscord {
		initDiscordRPC(ctx)
	}

	if directHost != "" {
		// Read name and color before the render loop starts mutating gs.
		name, color := joinName(), gs.Color
		go func() {
			<-gameStarted
			if err := sess.Connect(ctx, directHost, name, color, joinPassword); err != nil {
				reportSessionError(err)
			}
		}()
	}

	runGame(ctx)
	cancel()
	sess.Disconnect()
}
