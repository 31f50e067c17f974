package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cjeanneret/SharedCam/internal/config"
	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/hw/ar"
	"github.com/cjeanneret/SharedCam/internal/hw/camera"
	"github.com/cjeanneret/SharedCam/internal/hw/gpio"
	"github.com/cjeanneret/SharedCam/internal/hw/indicator"
	"github.com/cjeanneret/SharedCam/internal/hw/surface"
	"github.com/cjeanneret/SharedCam/internal/logic/capture"
	"github.com/cjeanneret/SharedCam/internal/logic/snapshot"
	"github.com/cjeanneret/SharedCam/internal/looper"
	"github.com/cjeanneret/SharedCam/internal/render"
	"github.com/cjeanneret/SharedCam/internal/web"
)

const capturePulse = 150 * time.Millisecond

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	outPath := flag.String("o", "still.jpg", "output file for a one-shot capture")
	rotation := &optionalInt{}
	flag.Var(rotation, "rotation_deg", "override still rotation in clockwise degrees (multiple of 90)")
	quality := flag.Int("jpeg_quality", 0, "override JPEG quality (1-100)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := validateCLIOverrides(rotation, *quality); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, rotation, *quality)

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	debug.Step(2, "Creating camera coordinator")
	a, err := newApp(cfg, gpioDriver, broadcaster)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer a.close()

	debug.Step(3, "Opening shared camera")
	if err := a.coord.OnViewCreated(); err != nil {
		a.close()
		log.Fatalf("camera session failed: %v", err)
	}

	if port := webPort.port(); port > 0 {
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, a.coord, cfg.SnapshotTimeout())
		if err != nil {
			a.close()
			log.Fatalf("web server: %v", err)
		}
		if err := srv.Run(ctx); err != nil {
			a.close()
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if err := a.captureOnce(ctx, *outPath); err != nil {
		a.close()
		log.Fatalf("capture failed: %v", err)
	}
}

// app wires the coordinator to its simulated platform and the tally LED.
type app struct {
	cfg         *config.Config
	tally       *indicator.Tally
	ui          *looper.Looper
	view        *render.View
	coord       *capture.Coordinator
	broadcaster *web.StatusBroadcaster // nil outside web mode

	activeOnce sync.Once
	active     chan struct{}
	closeOnce  sync.Once
}

func newApp(cfg *config.Config, g gpio.Driver, broadcaster *web.StatusBroadcaster) (*app, error) {
	tally, err := indicator.NewTally(g, cfg.Indicator.Pin)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:         cfg,
		tally:       tally,
		ui:          looper.New("main"),
		view:        render.NewView(),
		broadcaster: broadcaster,
		active:      make(chan struct{}),
	}
	coord, err := newCoordinatorFromConfig(cfg, a.ui, a.view)
	if err != nil {
		a.ui.QuitSafely()
		return nil, err
	}
	coord.SetStageListener(a.stageChanged)
	coord.SetOnSessionErrorListener(func(err error) {
		if a.broadcaster != nil {
			a.broadcaster.Broadcast(web.LevelError, "Camera session failed: "+err.Error())
		}
	})
	coord.SetOnClosedListener(func() { debug.Info("Camera closed") })
	a.coord = coord
	return a, nil
}

// newCoordinatorFromConfig selects the camera platform based on configuration.
func newCoordinatorFromConfig(cfg *config.Config, ui looper.Executor, view capture.Renderer) (*capture.Coordinator, error) {
	var deps capture.Deps
	switch cfg.Camera.Type {
	case "sim":
		texture := surface.Size{Width: cfg.Sim.TextureWidth, Height: cfg.Sim.TextureHeight}
		deps = capture.Deps{
			Cameras: camera.NewSimManager(camera.SimConfig{
				CameraIDs:     []string{cfg.Sim.CameraID},
				FrameSize:     texture,
				OpenDelay:     cfg.OpenDelay(),
				CloseDelay:    cfg.CloseDelay(),
				FrameInterval: cfg.FrameInterval(),
			}),
			Sessions: &ar.SimProvider{CameraID: cfg.Sim.CameraID, TextureSize: texture},
		}
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
	deps.Renderer = view
	deps.UI = ui

	return capture.NewCoordinator(deps, capture.Config{
		ThreadName: cfg.Camera.ThreadName,
		AR:         cfg.ARSession(),
		Snapshot: snapshot.Options{
			RotationDeg: cfg.Rotation(),
			Quality:     cfg.Snapshot.JPEGQuality,
		},
	}), nil
}

func (a *app) stageChanged(from, to capture.Stage) {
	if a.broadcaster != nil {
		a.broadcaster.BroadcastStage(from, to)
	}
	switch to {
	case capture.StageActive:
		if err := a.tally.Set(true); err != nil {
			debug.Error(err)
		}
		a.activeOnce.Do(func() { close(a.active) })
	case capture.StageClosed:
		if err := a.tally.Set(false); err != nil {
			debug.Error(err)
		}
	}
}

// waitActive blocks until the session streams, a failure is recorded or
// ctx is done.
func (a *app) waitActive(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-a.active:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("camera not active (stage %s): %w", a.coord.Stage(), ctx.Err())
		case <-ticker.C:
			if err := a.coord.Err(); err != nil {
				return err
			}
		}
	}
}

// captureOnce waits for the session, takes one still and writes it to path.
func (a *app) captureOnce(ctx context.Context, path string) error {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.OpenDelay()+a.cfg.SnapshotTimeout())
	defer cancel()
	if err := a.waitActive(waitCtx); err != nil {
		return err
	}

	stillCtx, cancel := context.WithTimeout(ctx, a.cfg.SnapshotTimeout())
	defer cancel()
	data, err := web.TakeStill(stillCtx, a.coord)
	if err != nil {
		return err
	}
	a.tally.Pulse(capturePulse)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write still: %w", err)
	}
	debug.Info("Still written to %s (%d bytes)", path, len(data))
	return nil
}

// close runs the view teardown: camera shutdown, then the UI context.
func (a *app) close() {
	a.closeOnce.Do(func() {
		debug.Section("Shutdown")
		a.coord.OnDestroy()
		a.view.Pause()
		a.ui.QuitSafely()
		<-a.ui.Done()
		if err := a.tally.Set(false); err != nil {
			debug.Error(err)
		}
	})
}

// validateCLIOverrides checks the overrides that were given on the command line.
// A zero quality means "use config".
func validateCLIOverrides(rotation *optionalInt, quality int) error {
	if rotation.set && rotation.val%90 != 0 {
		return fmt.Errorf("rotation_deg must be a multiple of 90, got %d", rotation.val)
	}
	if quality != 0 && (quality < 1 || quality > 100) {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", quality)
	}
	return nil
}

// applyOverrides mutates cfg with the overrides that were given.
func applyOverrides(cfg *config.Config, rotation *optionalInt, quality int) {
	if rotation.set {
		deg := rotation.val
		cfg.Snapshot.RotationDeg = &deg
	}
	if quality != 0 {
		cfg.Snapshot.JPEGQuality = quality
	}
}

// optionalInt is an int flag that remembers whether it was given, so 0
// stays a valid value.
type optionalInt struct {
	val int
	set bool
}

func (o *optionalInt) String() string {
	if !o.set {
		return ""
	}
	return strconv.Itoa(o.val)
}

func (o *optionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("must be an integer")
	}
	o.val = v
	o.set = true
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
