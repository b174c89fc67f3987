package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/1risS/in.organico/audio"
	"github.com/1risS/in.organico/control"
	"github.com/1risS/in.organico/glfwcontext"
	"github.com/1risS/in.organico/levels"
	"github.com/1risS/in.organico/media"
	"github.com/1risS/in.organico/options"
	"github.com/1risS/in.organico/remote"
	"github.com/1risS/in.organico/renderer"
	"github.com/1risS/in.organico/resources"
	"github.com/1risS/in.organico/session"
	"github.com/1risS/in.organico/store"
	"github.com/1risS/in.organico/telemetry"
	"github.com/charmbracelet/log"
	glfw "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/google/uuid"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func init() {
	// GLFW and the GL context live on the main thread.
	runtime.LockOSThread()
}

// adapters starts every enabled input and returns when all of them stopped.
func adapters(ctx context.Context, o options.Options, s *session.Session) *sync.WaitGroup {
	var wg sync.WaitGroup
	run := func(name string, f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(); err != nil {
				log.Error("Adapter stopped", "adapter", name, "err", err)
			}
		}()
	}

	if o.Control.Enabled {
		stop, err := control.Listen(s.HandleControl)
		if err != nil {
			log.Warn("MIDI control disabled", "err", err)
		} else {
			context.AfterFunc(ctx, stop)
		}
	}

	if o.Telemetry.Enabled {
		l := &telemetry.Listener{Stream: o.Telemetry.Stream, Sink: s.HandleTelemetry}
		run("telemetry", func() error {
			log.Infof("Listening for OSC telemetry on %s", o.Telemetry.Addr)
			return l.ListenAndServe(ctx, o.Telemetry.Addr)
		})
	}

	if o.Remote.Enabled {
		srv := remote.NewServer(s)
		run("remote", func() error {
			log.Infof("Serving remote code on %s", o.Remote.Addr)
			return srv.ListenAndServe(ctx, o.Remote.Addr)
		})
	}

	if o.Audio.Enabled {
		var dev audio.Device
		mic, err := audio.NewMicrophone(o.Audio.SampleRate, o.Audio.FramesPerBuffer)
		if err != nil {
			log.Warn("Microphone unavailable, audio levels disabled", "err", err)
			dev = audio.NewNullDevice(o.Audio.SampleRate)
		} else {
			dev = mic
		}
		chunks, err := dev.Start()
		if err != nil {
			log.Warn("Audio capture failed to start", "err", err)
		} else {
			sink := func(ch int, level float64) {
				s.HandleTelemetry(telemetry.Sample{Stream: "local", Channel: ch, Level: level})
			}
			run("audio", func() error {
				defer dev.Stop()
				levels.Pump(ctx, chunks, levels.NewAnalyzer(o.Audio.Bands), o.Audio.Interval, o.Audio.BaseChannel, sink)
				return nil
			})
		}
	}
	return &wg
}

func replay(o options.Options, s *session.Session) {
	if !o.Journal.Replay {
		return
	}
	if err := s.Replay(); err != nil {
		log.Error("Journal replay failed", "err", err)
	}
}

func runHeadless(ctx context.Context, o options.Options, cfg session.Config, loader *media.Loader) error {
	s := session.New(cfg, loader, nil, nil)
	defer s.Close()
	replay(o, s)
	wg := adapters(ctx, o, s)
	log.Info("Running headless", "fps", o.FPS)
	err := s.Run(ctx, o.FPS)
	// Adapters blocked on a full mailbox return once the session is closed.
	s.Close()
	wg.Wait()
	return err
}

func runWindowed(ctx context.Context, o options.Options, cfg session.Config, loader *media.Loader) error {
	if err := glfwcontext.InitGraphics(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	defer glfwcontext.TerminateGraphics()

	gc, err := glfwcontext.New(o.Window)
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	defer gc.Shutdown()

	r, err := renderer.New(ctx, gc, o.Grid.Width, o.Grid.Height)
	if err != nil {
		return err
	}
	defer r.Shutdown()
	glfw.SwapInterval(1)

	s := session.New(cfg, loader, r, gc)
	gc.OnResize(r.Resize)
	// Key callbacks fire from PollEvents, on the session goroutine.
	gc.RegisterKeyCallback(glfw.KeyP, s.Panic)

	replay(o, s)
	ctx, cancel := context.WithCancel(ctx)
	wg := adapters(ctx, o, s)
	defer wg.Wait()
	// Adapters blocked on a full mailbox return once the session is closed.
	defer s.Close()
	defer cancel()

	idle := time.Second / time.Duration(o.FPS)
	last := gc.Time()
	for !gc.ShouldClose() && ctx.Err() == nil {
		gc.PollEvents()
		now := gc.Time()
		if !s.Step(now - last) {
			time.Sleep(idle)
		}
		last = now
	}
	log.Info("Render window closed")
	return nil
}

func main() {
	var configPath = flag.String("config", "", "Path to a YAML options file")
	var headless = flag.Bool("headless", false, "Run without a window or renderer")
	var replayJournal = flag.Bool("replay", false, "Re-evaluate the journal at startup")
	var journalPath = flag.String("journal", "", "Path to the journal database (overrides the options file)")
	var defaultImage = flag.String("image", "", "Default image (overrides the options file)")
	var ffmpegPath = flag.String("ffmpeg", "", "Path to ffmpeg executable")
	var logLevel = flag.String("log-level", "", "Log level: debug, info, warn or error")
	var help = flag.Bool("help", false, "Show help message")
	flag.Parse()

	if *help {
		fmt.Println("in.organico live point-cloud coordinator")
		flag.PrintDefaults()
		return
	}

	o, err := options.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *headless {
		o.Window.Headless = true
	}
	if *replayJournal {
		o.Journal.Replay = true
	}
	if *journalPath != "" {
		o.Journal.Path = *journalPath
	}
	if *defaultImage != "" {
		o.Media.DefaultImage = *defaultImage
	}
	if *ffmpegPath != "" {
		o.Media.FFmpegPath = *ffmpegPath
	}
	if *logLevel != "" {
		o.Log.Level = *logLevel
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	id := uuid.NewString()
	if err := setupLogging(o.Log, id); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := &media.Loader{Width: o.Grid.Width, Height: o.Grid.Height, FFmpegPath: o.Media.FFmpegPath}
	cfg := session.Config{
		ID:           id,
		DefaultImage: o.Media.DefaultImage,
		Blank:        func() resources.Resource { return loader.Blank() },
		PanicFlash:   o.PanicFlash,
		EvalTimeout:  o.Remote.EvalTimeout,
	}
	if o.Journal.Path != "" {
		j, err := store.Open(o.Journal.Path)
		if err != nil {
			log.Fatal("Failed to open journal", "path", o.Journal.Path, "err", err)
		}
		defer j.Close()
		cfg.Journal = j
	}

	if o.Window.Headless {
		err = runHeadless(ctx, o, cfg, loader)
	} else {
		err = runWindowed(ctx, o, cfg, loader)
	}
	if err != nil {
		log.Error("Exiting", "err", err)
		os.Exit(1)
	}
}
