// Console for sending control events by hand, one event per line in text form.
package main

import (
	"flag"
	"net"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/rover/control"
	"github.com/temoto/rover/helpers/cli"
	"github.com/temoto/rover/log2"
)

const usage = `syntax: one event per line
- Connected | Disconnected | Dropped
- ButtonPressed|ButtonRepeated|ButtonReleased <button>
- ButtonChanged <button> <value>
- AxisChanged <axis> <value>
(meta)
- help     show this text
- log=yes  log every sent frame
- log=no
`

var log = log2.NewStderr(log2.LInfo)

func main() {
	flagAddress := flag.String("address", "127.0.0.1:7000", "vehicle control host:port")
	flag.Parse()
	log.SetFlags(log2.LInteractiveFlags)

	conn, err := net.DialTimeout("tcp", *flagAddress, 5*time.Second)
	if err != nil {
		log.Fatal(errors.Annotatef(err, "dial address=%s", *flagAddress))
	}
	defer conn.Close()
	enc := control.NewEncoder(conn)

	cli.MainLoop("rover-cli", newExecutor(enc), cli.Completer(suggests()))
}

func suggests() []prompt.Suggest {
	ss := []prompt.Suggest{
		{Text: "help", Description: "show syntax"},
		{Text: "log=yes", Description: "enable debug logging"},
		{Text: "log=no", Description: "disable debug logging"},
	}
	for _, w := range control.Words() {
		ss = append(ss, prompt.Suggest{Text: w})
	}
	return ss
}

func newExecutor(enc *control.Encoder) func(string) {
	return func(line string) {
		switch line {
		case "":
			return
		case "help":
			log.Infof(usage)
			return
		case "log=yes":
			log.SetLevel(log2.LDebug)
			return
		case "log=no":
			log.SetLevel(log2.LInfo)
			return
		}
		e, err := control.ParseEvent(line)
		if err != nil {
			log.Errorf("%v (type help)", err)
			return
		}
		if err = enc.Send(e); err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
		log.Debugf("> %s", e)
	}
}
