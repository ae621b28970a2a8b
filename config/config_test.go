package config

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rover/drive"
	"github.com/temoto/rover/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.False(t, c.Camera.Enable)
			assert.False(t, c.Controller.Enable)
			assert.Equal(t, DefaultDialTimeout, c.DialTimeout())
		}, ""},

		{"camera", `camera { enable = true ip = "10.0.0.2" port = 7001 device = "/dev/video1" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "10.0.0.2:7001", c.Camera.Address())
				assert.Equal(t, "/dev/video1", c.Camera.Device)
				assert.Equal(t, DefaultCameraQuality, c.Camera.Quality)
			}, ""},

		{"discard-without-ip", `lidar { enable = true device = "/dev/ttyUSB0" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "", c.Lidar.Address())
				assert.Equal(t, DefaultLidarBaud, c.Lidar.Baud)
				assert.Equal(t, DefaultReadTimeout, c.Lidar.Timeout())
			}, ""},

		{"gps", `gps { enable = true ip = "::1" port = 7003 device = "/dev/ttyAMA0" timeout_ms = 250 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "[::1]:7003", c.GPS.Address())
				assert.Equal(t, DefaultGPSBaud, c.GPS.Baud)
				assert.Equal(t, 250*time.Millisecond, c.GPS.Timeout())
			}, ""},

		{"controller-defaults", `controller { enable = true port = 7000 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "0.0.0.0:7000", c.Controller.ListenAddress())
				assert.Equal(t, drive.LayoutDriveSteer, c.Controller.Layout)
				assert.Equal(t, 1, c.Actuator.DriveMotor)
				s := c.Actuator.Steering
				assert.Equal(t, DefaultSteerChip, s.Chip)
				assert.Equal(t, DefaultSteerLine, s.Line)
				assert.Equal(t, DefaultSteerPeriod, s.Period())
				assert.Equal(t, drive.SteerCalibration{Min: drive.DefaultSteerMin, Max: drive.DefaultSteerMax}, s.Calibration())
			}, ""},

		{"differential", `
controller { enable = true port = 7000 layout = "differential" }
actuator { left_motor = 2 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 2, c.Actuator.LeftMotor)
				assert.Equal(t, 4, c.Actuator.RightMotor)
			}, ""},

		{"include-optional", `
include "camera-on" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.True(t, c.Camera.Enable)
			}, ""},

		{"include-overwrites", `
network { dial_timeout_ms = 100 }
include "network-slow" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 9*time.Second, c.DialTimeout())
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-camera-device", `camera { enable = true }`, nil, "camera.device=empty"},
		{"error-port", `gps { enable = true device = "/dev/x" ip = "10.0.0.2" port = 70000 }`, nil, "gps.port=70000"},
		{"error-layout", `controller { enable = true port = 1 layout = "tank" }`, nil, "controller.layout=tank"},
		{"error-motor", `controller { enable = true port = 1 } actuator { drive_motor = 5 }`, nil, "actuator.drive_motor=5"},
		{"error-steer-range", `
controller { enable = true port = 1 }
actuator { steering { min_pulse_us = 1700 max_pulse_us = 1300 } }`, nil, "actuator.steering pulse=1700..1300us"},
		{"error-same-motor", `
controller { enable = true port = 1 layout = "differential" }
actuator { left_motor = 3 right_motor = 3 }`, nil, "left_motor=right_motor=3"},
		{"error-multiple", `
camera { enable = true quality = 101 }
lidar { enable = true baud = -1 }`, nil, "camera.quality=101"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"camera-on":    `camera { enable = true device = "/dev/video0" }`,
				"network-slow": "network { dial_timeout_ms = 9000 }",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				require.NoError(t, err, errors.ErrorStack(err))
				if c.check != nil {
					c.check(t, cfg)
				}
				return
			}
			require.Error(t, err)
			if !strings.Contains(err.Error(), c.expectErr) {
				t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
			}
		})
	}
}

func TestValidateAllErrors(t *testing.T) {
	t.Parallel()
	c := &Config{}
	c.Camera.Enable = true
	c.Lidar.Enable = true
	c.Lidar.Baud = -1
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera.device=empty")
	assert.Contains(t, err.Error(), "lidar.device=empty")
	assert.Contains(t, err.Error(), "lidar.baud=-1")
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../rover.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../rover.hcl")
	assert.Equal(t, "192.168.1.10:7001", c.Camera.Address())
	assert.Equal(t, drive.LayoutDriveSteer, c.Controller.Layout)
}
