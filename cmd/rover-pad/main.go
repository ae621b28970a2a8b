// Operator daemon: gamepad events to vehicle control port.
package main

import (
	"flag"
	"io"
	"net"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rover/control"
	"github.com/temoto/rover/log2"
	"github.com/temoto/rover/pad"
)

func main() {
	flagDevice := flag.String("device", "/dev/input/event0", "evdev gamepad")
	flagAddress := flag.String("address", "192.168.1.20:7000", "vehicle control host:port")
	flagGrab := flag.Bool("grab", true, "exclusive access to device")
	flagDeadzone := flag.Float64("deadzone", 0.05, "stick deadzone")
	flagDebug := flag.Bool("debug", false, "log every event")
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	log.SetFlags(log2.LInteractiveFlags)
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}

	p, err := pad.Open(pad.Config{Device: *flagDevice, Grab: *flagGrab, Deadzone: float32(*flagDeadzone)})
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	defer p.Close()

	conn, err := net.DialTimeout("tcp", *flagAddress, 5*time.Second)
	if err != nil {
		log.Fatal(errors.Annotatef(err, "dial address=%s", *flagAddress))
	}
	defer conn.Close()
	log.Infof("connected device=%s address=%s", *flagDevice, *flagAddress)

	enc := control.NewEncoder(conn)
	err = pad.Forward(p, func(e control.Event) error {
		log.Debugf("send %s", e)
		return enc.Send(e)
	})
	if errors.Cause(err) == io.EOF {
		log.Infof("pad gone device=%s", *flagDevice)
		return
	}
	log.Errorf("%s", errors.ErrorStack(err))
	os.Exit(1)
}
