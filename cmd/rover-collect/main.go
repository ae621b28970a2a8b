// Operator side collector: accepts vehicle sensor streams and logs each frame.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rover/log2"
	"github.com/temoto/rover/sensor"
)

var log = log2.NewStderr(log2.LInfo)

func main() {
	flagCamera := flag.String("camera", ":7001", "image stream listen address, empty = off")
	flagLidar := flag.String("lidar", ":7002", "scan stream listen address, empty = off")
	flagGPS := flag.String("gps", ":7003", "position stream listen address, empty = off")
	flagImageDir := flag.String("image-dir", "", "write latest image as <dir>/latest.jpg")
	flagDebug := flag.Bool("debug", false, "")
	flag.Parse()

	log.SetFlags(log2.LInteractiveFlags)
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}

	a := alive.NewAlive()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
		a.Stop()
	}()

	c := &collector{imageDir: *flagImageDir}
	for _, s := range []struct {
		address string
		kind    sensor.Kind
	}{
		{*flagCamera, sensor.KindImage},
		{*flagLidar, sensor.KindScan},
		{*flagGPS, sensor.KindPosition},
	} {
		if s.address == "" {
			continue
		}
		var lc net.ListenConfig
		ll, err := lc.Listen(ctx, "tcp", s.address)
		if err != nil {
			log.Fatal(errors.Annotatef(err, "listen %s address=%s", s.kind, s.address))
		}
		log.Infof("%s listen=%s", s.kind, ll.Addr())
		go func() {
			<-ctx.Done()
			_ = ll.Close()
		}()
		if !a.Add(1) {
			break
		}
		go func(kind sensor.Kind) {
			defer a.Done()
			c.serve(ctx, ll, kind)
		}(s.kind)
	}
	a.Stop()
	a.Wait()
}

type collector struct {
	imageDir string
	frames   int64
}

func (c *collector) serve(ctx context.Context, ll net.Listener, kind sensor.Kind) {
	for {
		conn, err := ll.Accept()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Errorf("%s accept err=%v", kind, err)
			return
		}
		log.Infof("%s connected remote=%s", kind, conn.RemoteAddr())
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		err = c.read(conn, kind)
		stop()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil && errors.Cause(err) != io.EOF {
			log.Errorf("%s remote=%s err=%v", kind, conn.RemoteAddr(), err)
		} else {
			log.Infof("%s disconnected remote=%s", kind, conn.RemoteAddr())
		}
	}
}

// read decodes frames until stream end, framing error is fatal for connection.
func (c *collector) read(conn net.Conn, kind sensor.Kind) error {
	r := bufio.NewReader(conn)
	for {
		f, err := sensor.ReadFrame(r, kind)
		if err != nil {
			return err
		}
		n := atomic.AddInt64(&c.frames, 1)
		switch f := f.(type) {
		case sensor.ImageFrame:
			log.Debugf("#%d image bytes=%d", n, len(f.Payload))
			if c.imageDir != "" {
				if err := writeAtomic(filepath.Join(c.imageDir, "latest.jpg"), f.Payload); err != nil {
					log.Errorf("image write err=%v", err)
				}
			}
		case sensor.ScanFrame:
			log.Debugf("#%d scan points=%d", n, len(f.Points))
		case sensor.PositionFrame:
			log.Infof("#%d position lat=%.6f lon=%.6f", n, f.Latitude, f.Longitude)
		}
	}
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
