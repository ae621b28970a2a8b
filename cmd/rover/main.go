// Vehicle daemon: sensor streams out, operator control in.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/rover/config"
	"github.com/temoto/rover/log2"
	"github.com/temoto/rover/state"
)

const stopTimeout = 5 * time.Second

func main() {
	flagConfig := flag.String("config", "rover.hcl", "")
	flagDebug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}
	if sdnotify("start") {
		// under systemd, journal adds timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	cfg := config.MustReadConfig(log, config.NewOsFullReader(), *flagConfig)
	g := state.NewGlobal(log)
	g.MustInit(cfg)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Infof("signal=%v stopping", s)
		sdnotify(daemon.SdNotifyStopping)
		if !g.StopWait(stopTimeout) {
			log.Errorf("stop timeout=%v", stopTimeout)
			os.Exit(1)
		}
	}()

	sdnotify(daemon.SdNotifyReady)
	if err := g.Run(context.Background()); err != nil {
		log.Errorf("%s", errors.ErrorStack(err))
		os.Exit(1)
	}
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log2.NewStderr(log2.LError).Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
