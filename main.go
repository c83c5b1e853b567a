package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/nr32/nr32emu/emu/audio"
	"github.com/nr32/nr32emu/emu/machine"
	"github.com/nr32/nr32emu/emu/video"
	logger "github.com/nr32/nr32emu/util/logger"
)

var Logger *slog.Logger

// stepsPerTick bounds how much CPU work Machine.Run does before main
// checks for a shutdown signal, keeping Ctrl-C latency low without
// paying a channel/context check per instruction.
const stepsPerTick = 1 << 16

func main() {
	optROM := getopt.StringLong("rom", 'r', "", "ROM image to boot")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', false, "Verbose (debug-level) logging")
	optHelp := getopt.BoolLong("help", 'h', false, "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "can't create log file: %v\n", err)
			os.Exit(1)
		}
	}
	programLevel := new(slog.LevelVar)
	if *optDebug {
		programLevel.Set(slog.LevelDebug)
	} else {
		programLevel.Set(slog.LevelInfo)
	}
	debug := optDebug
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, debug))
	slog.SetDefault(Logger)

	if *optROM == "" {
		Logger.Error("no ROM image given, pass -r/--rom")
		os.Exit(1)
	}
	romImg, err := os.ReadFile(*optROM)
	if err != nil {
		Logger.Error("reading ROM image", "path", *optROM, "error", err)
		os.Exit(1)
	}

	console := &debugSink{log: Logger}
	fb := video.NewFramebuffer()
	videoSink := video.NewEbitenSink(fb)
	audioSink, err := audio.NewOtoSink()
	if err != nil {
		Logger.Error("opening audio device", "error", err)
		os.Exit(1)
	}

	m := machine.New(videoSink, audioSink, console)
	if err := m.LoadROM(romImg); err != nil {
		Logger.Error("loading ROM", "error", err)
		os.Exit(1)
	}
	m.Start()

	if starter, ok := any(videoSink).(interface{ Start(string) error }); ok {
		if err := starter.Start("NovaRave32"); err != nil {
			Logger.Error("starting video backend", "error", err)
			os.Exit(1)
		}
	}

	Logger.Info("NovaRave32 booted", "rom", *optROM)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	var shutdownCode uint16
	var runErr error
	go func() {
		defer close(done)
		for {
			select {
			case <-sigChan:
				return
			default:
			}
			code, halted, err := m.Run(stepsPerTick)
			if err != nil {
				runErr = err
				return
			}
			if halted {
				shutdownCode = code
				return
			}
		}
	}()

	select {
	case <-sigChan:
		Logger.Info("got quit signal")
	case <-done:
		if runErr != nil {
			Logger.Error("emulation halted on fault", "error", runErr)
			os.Exit(1)
		}
		Logger.Info("guest requested shutdown", "code", shutdownCode)
	}
}

// debugSink routes the guest debug console through the host logger.
type debugSink struct {
	log *slog.Logger
}

func (d *debugSink) WriteDebug(b []byte) {
	d.log.Info(string(b))
}
