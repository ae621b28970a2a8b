// Package config reads vehicle configuration from HCL files with includes.
package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/rover/drive"
	"github.com/temoto/rover/helpers"
	"github.com/temoto/rover/log2"
)

const (
	DefaultCameraQuality = 80
	DefaultLidarBaud     = 115200
	DefaultGPSBaud       = 9600
	DefaultReadTimeout   = time.Second
	DefaultDialTimeout   = 5 * time.Second
	DefaultSteerChip     = "/dev/gpiochip0"
	DefaultSteerLine     = 17
	DefaultSteerPeriod   = 20 * time.Millisecond
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Camera     Camera     `hcl:"camera"`
	Lidar      Serial     `hcl:"lidar"`
	GPS        Serial     `hcl:"gps"`
	Controller Controller `hcl:"controller"`
	Actuator   Actuator   `hcl:"actuator"`
	Network    struct {
		DialTimeoutMs int `hcl:"dial_timeout_ms"`
	} `hcl:"network"`
	Log struct {
		Debug bool `hcl:"debug"`
	} `hcl:"log"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

type Camera struct {
	Enable  bool   `hcl:"enable"`
	IP      string `hcl:"ip"`
	Port    int    `hcl:"port"`
	Device  string `hcl:"device"`
	Width   int    `hcl:"width"`
	Height  int    `hcl:"height"`
	Quality int    `hcl:"quality"`
}

// Address of frame sink, empty = discard mode.
func (c *Camera) Address() string { return address(c.IP, c.Port) }

type Serial struct {
	Enable    bool   `hcl:"enable"`
	IP        string `hcl:"ip"`
	Port      int    `hcl:"port"`
	Device    string `hcl:"device"`
	Baud      int    `hcl:"baud"`
	TimeoutMs int    `hcl:"timeout_ms"`
}

func (s *Serial) Address() string { return address(s.IP, s.Port) }
func (s *Serial) Timeout() time.Duration {
	return helpers.IntMillisecondDefault(s.TimeoutMs, DefaultReadTimeout)
}

type Controller struct {
	Enable    bool   `hcl:"enable"`
	Port      int    `hcl:"port"`
	Layout    string `hcl:"layout"`
	ReadLimit int    `hcl:"read_limit"`
}

// ListenAddress binds all interfaces.
func (c *Controller) ListenAddress() string { return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.Port)) }

type Actuator struct {
	I2CBus     string   `hcl:"i2c_bus"`
	I2CAddr    int      `hcl:"i2c_addr"`
	PWMFreq    int      `hcl:"pwm_freq"`
	DriveMotor int      `hcl:"drive_motor"`
	LeftMotor  int      `hcl:"left_motor"`
	RightMotor int      `hcl:"right_motor"`
	Steering   Steering `hcl:"steering"`
}

type Steering struct {
	Chip       string `hcl:"chip"`
	Line       int    `hcl:"line"`
	PeriodMs   int    `hcl:"period_ms"`
	MinPulseUs int    `hcl:"min_pulse_us"`
	MaxPulseUs int    `hcl:"max_pulse_us"`
}

func (s *Steering) Period() time.Duration {
	return helpers.IntMillisecondDefault(s.PeriodMs, DefaultSteerPeriod)
}

func (s *Steering) Calibration() drive.SteerCalibration {
	return drive.SteerCalibration{
		Min: time.Duration(s.MinPulseUs) * time.Microsecond,
		Max: time.Duration(s.MaxPulseUs) * time.Microsecond,
	}
}

func (c *Config) DialTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.Network.DialTimeoutMs, DefaultDialTimeout)
}

func address(ip string, port int) string {
	if ip == "" {
		return ""
	}
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

func validPort(port int) bool { return port > 0 && port <= 65535 }

// Validate applies defaults and reports all invalid values at once.
func (c *Config) Validate() error {
	errs := make([]error, 0, 8)

	if c.Camera.Enable {
		if c.Camera.Device == "" {
			errs = append(errs, errors.NotValidf("config: camera.device=empty"))
		}
		if c.Camera.IP != "" && !validPort(c.Camera.Port) {
			errs = append(errs, errors.NotValidf("config: camera.port=%d", c.Camera.Port))
		}
		if c.Camera.Width < 0 || c.Camera.Height < 0 {
			errs = append(errs, errors.NotValidf("config: camera size=%dx%d", c.Camera.Width, c.Camera.Height))
		}
		if c.Camera.Quality == 0 {
			c.Camera.Quality = DefaultCameraQuality
		} else if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
			errs = append(errs, errors.NotValidf("config: camera.quality=%d", c.Camera.Quality))
		}
	}
	errs = c.Lidar.validate("lidar", DefaultLidarBaud, errs)
	errs = c.GPS.validate("gps", DefaultGPSBaud, errs)

	if c.Controller.Enable {
		if !validPort(c.Controller.Port) {
			errs = append(errs, errors.NotValidf("config: controller.port=%d", c.Controller.Port))
		}
		if c.Controller.Layout == "" {
			c.Controller.Layout = drive.LayoutDriveSteer
		}
		if c.Controller.ReadLimit < 0 {
			errs = append(errs, errors.NotValidf("config: controller.read_limit=%d", c.Controller.ReadLimit))
		}
		errs = c.Actuator.validate(c.Controller.Layout, errs)
	}
	if c.Network.DialTimeoutMs < 0 {
		errs = append(errs, errors.NotValidf("config: network.dial_timeout_ms=%d", c.Network.DialTimeoutMs))
	}
	return helpers.FoldErrors(errs)
}

func (s *Serial) validate(name string, baud int, errs []error) []error {
	if !s.Enable {
		return errs
	}
	if s.Device == "" {
		errs = append(errs, errors.NotValidf("config: %s.device=empty", name))
	}
	if s.IP != "" && !validPort(s.Port) {
		errs = append(errs, errors.NotValidf("config: %s.port=%d", name, s.Port))
	}
	if s.Baud == 0 {
		s.Baud = baud
	} else if s.Baud < 0 {
		errs = append(errs, errors.NotValidf("config: %s.baud=%d", name, s.Baud))
	}
	if s.TimeoutMs < 0 {
		errs = append(errs, errors.NotValidf("config: %s.timeout_ms=%d", name, s.TimeoutMs))
	}
	return errs
}

func (a *Actuator) validate(layout string, errs []error) []error {
	validMotor := func(key string, n int) {
		if n < 1 || n > 4 {
			errs = append(errs, errors.NotValidf("config: actuator.%s=%d", key, n))
		}
	}
	switch layout {
	case drive.LayoutDriveSteer:
		if a.DriveMotor == 0 {
			a.DriveMotor = 1
		}
		validMotor("drive_motor", a.DriveMotor)
		s := &a.Steering
		if s.Chip == "" {
			s.Chip = DefaultSteerChip
		}
		if s.Line == 0 {
			s.Line = DefaultSteerLine
		} else if s.Line < 0 {
			errs = append(errs, errors.NotValidf("config: actuator.steering.line=%d", s.Line))
		}
		if s.MinPulseUs == 0 && s.MaxPulseUs == 0 {
			s.MinPulseUs = int(drive.DefaultSteerMin / time.Microsecond)
			s.MaxPulseUs = int(drive.DefaultSteerMax / time.Microsecond)
		}
		if s.MinPulseUs <= 0 || s.MinPulseUs >= s.MaxPulseUs || s.Period() <= time.Duration(s.MaxPulseUs)*time.Microsecond {
			errs = append(errs, errors.NotValidf("config: actuator.steering pulse=%d..%dus period=%v",
				s.MinPulseUs, s.MaxPulseUs, s.Period()))
		}
	case drive.LayoutDifferential:
		if a.LeftMotor == 0 {
			a.LeftMotor = 1
		}
		if a.RightMotor == 0 {
			a.RightMotor = 4
		}
		validMotor("left_motor", a.LeftMotor)
		validMotor("right_motor", a.RightMotor)
		if a.LeftMotor == a.RightMotor {
			errs = append(errs, errors.NotValidf("config: actuator left_motor=right_motor=%d", a.LeftMotor))
		}
	default:
		errs = append(errs, errors.NotSupportedf("config: controller.layout=%s", layout))
	}
	if a.I2CAddr < 0 || a.I2CAddr > 0x7f {
		errs = append(errs, errors.NotValidf("config: actuator.i2c_addr=%#x", a.I2CAddr))
	}
	return errs
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads sources in order, later values overwrite earlier ones, then validates.
// With OsFullReader, includes are relative to directory of first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("code error ReadConfig() without names")
	}
	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names = append([]string{name}, names[1:]...)
	}
	c := &Config{includeSeen: make(map[string]struct{})}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if len(errs) != 0 {
		return c, helpers.FoldErrors(errs)
	}
	return c, c.Validate()
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
