// Package state wires config to hardware, sensor loops and control receiver.
package state

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rover/config"
	"github.com/temoto/rover/control"
	"github.com/temoto/rover/drive"
	"github.com/temoto/rover/hardware/camera"
	"github.com/temoto/rover/hardware/gnss"
	"github.com/temoto/rover/hardware/rplidar"
	"github.com/temoto/rover/helpers"
	"github.com/temoto/rover/log2"
	"github.com/temoto/rover/rover"
	"github.com/temoto/rover/sensor"
)

type Global struct {
	Alive    *alive.Alive
	Config   *config.Config
	Hardware Hardware
	Log      *log2.Log

	lk    sync.Mutex
	stats []namedStat
}

// Hardware openers, nil ones are built from config by Init.
// Tests replace them with fakes.
type Hardware struct {
	Camera    sensor.OpenFunc[sensor.RawImage]
	Lidar     sensor.OpenFunc[sensor.Scan]
	GPS       sensor.OpenFunc[string]
	Actuators ActuatorsFunc
	Dial      sensor.Dialer
	Listen    control.ListenFunc
}

// ActuatorsFunc opens vehicle actuators, closer releases all of them.
type ActuatorsFunc func(ctx context.Context) (drive.Actuators, io.Closer, error)

type namedStat struct {
	name string
	stat fmt.Stringer
}

func NewGlobal(log *log2.Log) *Global {
	return &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
}

// Init keeps config, immutable afterwards.
func (g *Global) Init(cfg *config.Config) error {
	if cfg == nil {
		return errors.NotValidf("code error state Init config=nil")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	g.Config = cfg
	if cfg.Log.Debug {
		g.Log.SetLevel(log2.LDebug)
	}

	h := &g.Hardware
	if h.Camera == nil {
		c := &cfg.Camera
		h.Camera = camera.Opener(camera.Config{
			Device: c.Device,
			Width:  uint32(c.Width),
			Height: uint32(c.Height),
		}, g.Log.Named("camera"))
	}
	if h.Lidar == nil {
		c := &cfg.Lidar
		h.Lidar = rplidar.Opener(rplidar.Config{Device: c.Device, Baud: c.Baud, ReadTimeout: c.Timeout()}, g.Log.Named("lidar"))
	}
	if h.GPS == nil {
		c := &cfg.GPS
		h.GPS = gnss.Opener(gnss.Config{Device: c.Device, Baud: c.Baud, ReadTimeout: c.Timeout()})
	}
	if h.Actuators == nil {
		h.Actuators = g.openActuators
	}
	if h.Dial == nil {
		h.Dial = sensor.NewTCPDialer(cfg.DialTimeout())
	}
	return nil
}

func (g *Global) MustInit(cfg *config.Config) {
	if err := g.Init(cfg); err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

// Tasks builds one loop per enabled sensor plus control receiver.
func (g *Global) Tasks() ([]rover.Task, error) {
	if g.Config == nil {
		return nil, errors.NotValidf("code error state Tasks() before Init()")
	}
	cfg := g.Config
	tasks := make([]rover.Task, 0, 4)
	errs := make([]error, 0)
	add := func(t rover.Task, stat fmt.Stringer, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		tasks = append(tasks, t)
		g.addStat(t.String(), stat)
	}

	if cfg.Camera.Enable {
		l, err := sensor.NewLoop(sensor.LoopOptions[sensor.RawImage]{
			Name:    "camera",
			Address: cfg.Camera.Address(),
			Open:    g.Hardware.Camera,
			Encoder: sensor.ImageEncoder{Codec: camera.JPEGCodec{Quality: cfg.Camera.Quality}},
			Dial:    g.Hardware.Dial,
			Log:     g.Log,
		})
		add(l, statOf(l, err), err)
	}
	if cfg.Lidar.Enable {
		l, err := sensor.NewLoop(sensor.LoopOptions[sensor.Scan]{
			Name:    "lidar",
			Address: cfg.Lidar.Address(),
			Open:    g.Hardware.Lidar,
			Encoder: sensor.ScanEncoder{},
			Dial:    g.Hardware.Dial,
			Log:     g.Log,
		})
		add(l, statOf(l, err), err)
	}
	if cfg.GPS.Enable {
		l, err := sensor.NewLoop(sensor.LoopOptions[string]{
			Name:    "gps",
			Address: cfg.GPS.Address(),
			Open:    g.Hardware.GPS,
			Encoder: sensor.PositionEncoder{Parser: sensor.NMEAParser{}},
			Dial:    g.Hardware.Dial,
			Log:     g.Log,
		})
		add(l, statOf(l, err), err)
	}
	if cfg.Controller.Enable {
		t := &controlTask{g: g}
		add(t, &t.stat, nil)
	}
	return tasks, helpers.FoldErrors(errs)
}

type statLooper interface{ Stat() *sensor.Stat }

func statOf(l statLooper, err error) fmt.Stringer {
	if err != nil {
		return nil
	}
	return l.Stat()
}

func (g *Global) addStat(name string, stat fmt.Stringer) {
	g.lk.Lock()
	g.stats = append(g.stats, namedStat{name, stat})
	g.lk.Unlock()
}

func (g *Global) LogStats() {
	g.lk.Lock()
	defer g.lk.Unlock()
	for _, s := range g.stats {
		g.Log.Infof("%s stat=%s", s.name, s.stat.String())
	}
}

// Run blocks until every loop has ended, see rover.Run.
func (g *Global) Run(ctx context.Context) error {
	tasks, err := g.Tasks()
	if err != nil {
		return err
	}
	_, err = rover.Run(ctx, g.Log, g.Alive, tasks)
	g.LogStats()
	return err
}

func (g *Global) Stop() { g.Alive.Stop() }

// StopWait returns false on timeout.
func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
