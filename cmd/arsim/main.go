package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/arview"
	"nuha.dev/ravevision/internal/bootstrap"
	"nuha.dev/ravevision/internal/config"
	"nuha.dev/ravevision/internal/geo"
	"nuha.dev/ravevision/internal/location"
	"nuha.dev/ravevision/internal/marker"
	"nuha.dev/ravevision/internal/orientation"
	"nuha.dev/ravevision/internal/store/impl/wsstore"
)

// frameLogger stands in for the rendering surface.
type frameLogger struct {
	log     log.Logger
	visible string
}

func (fl *frameLogger) render(f arview.Frame) {
	ids := make([]string, 0, len(f.Markers))
	for _, m := range f.Markers {
		ids = append(ids, m.PeerID)
	}
	sort.Strings(ids)
	visible := strings.Join(ids, ",")

	e := fl.log.Debug()
	if visible != fl.visible {
		e = fl.log.Info()
		fl.visible = visible
	}
	var heading float64
	if f.Orientation != nil {
		heading = f.Orientation.HeadingDegrees
	}
	e.Uint64("seq", f.Seq).Int("members", f.Members).Int("online", f.Online).
		Str("permission", f.Permission.String()).Float64("heading", heading).
		Int("visible", len(f.Markers)).Msg("frame")
	for _, m := range f.Markers {
		fl.log.Debug().Str("peer", m.PeerID).Str("name", m.DisplayName).
			Float64("x", m.ScreenX).Float64("y", m.ScreenY).Str("distance", m.DistanceLabel).
			Str("color", m.Color.String()).Bool("online", m.Online).Str("last_seen", m.LastSeenLabel).
			Msg("marker")
	}
}

func main() {
	config_dir := flag.String("config", "", "directory containing "+config.ClientConfigName)
	flag.Parse()

	if err := config.LoadClient(*config_dir); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	log.DefaultLogger.Level = log.ParseLevel(config.GetString("logLevel"))
	logger := log.DefaultLogger
	logger.Context = log.NewContext(nil).Str("module", "arsim").Value()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := wsstore.Dial(ctx, wsstore.Config{
		URL:   config.GetString("server.url"),
		Token: config.GetString("server.token"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect")
	}
	defer st.Close()

	walker := location.NewWalker(&location.WalkerConfig{
		Start:     geo.NewCoordinate(config.GetFloat64("sim.latitude"), config.GetFloat64("sim.longitude"), 0),
		Bearing:   config.GetFloat64("sim.bearing"),
		Speed:     config.GetFloat64("sim.speed"),
		Interval:  config.GetDuration("sim.interval"),
		FailEvery: config.GetInt("sim.failEvery"),
	})
	sensor := &orientation.Simulated{
		Interval:       config.GetDuration("sim.sensorInterval"),
		StartHeading:   config.GetFloat64("sim.bearing"),
		DegreesPerTick: config.GetFloat64("sim.turnRate"),
		Pitch:          config.GetFloat64("sim.pitch"),
	}
	perm := orientation.NewPermission(nil)

	b := bootstrap.New(&bootstrap.Config{Store: st, Source: walker, Orientation: perm})
	sess, err := b.Run(ctx, bootstrap.Request{
		DisplayName: config.GetString("user.name"),
		GroupName:   config.GetString("user.group"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap")
	}

	fl := &frameLogger{log: logger}
	view := arview.New(&arview.Config{
		Identity:   sess.Identity,
		Location:   &sess.Location,
		Store:      st,
		Source:     walker,
		Sensor:     sensor,
		Permission: perm,
		Model:      marker.NewModel(&marker.ModelConfig{FieldOfView: config.GetFloat64("view.fieldOfView")}),
		Render:     fl.render,
	})

	vctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-st.Done():
			logger.Error().Err(st.Err()).Msg("store connection lost")
			cancel()
		case <-vctx.Done():
		}
	}()
	if err = view.Run(vctx); err != nil {
		logger.Error().Err(err).Msg("view")
	}
	cancel()
	if err = view.Close(); err != nil {
		logger.Error().Err(err).Msg("teardown")
	}
	logger.Info().EmbedObject(sess.Identity).Msg("session ended")
}
