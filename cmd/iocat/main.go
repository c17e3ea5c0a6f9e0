// iocat opens a device URI and dumps every extracted packet to stdout as a
// hex/ASCII block. Handy for eyeballing an unknown byte stream while tuning
// a framer.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	driverbase "github.com/Brazilian-Institute-of-Robotics/ros-driver-base"
	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/framer"
	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/internal/logging"
)

func main() {
	uri := flag.String("uri", "", "device URI (serial://, tcp://, udp://, file://)")
	terminator := flag.String("terminator", "\n", "frame terminator bytes")
	bufferSize := flag.Int("buffer", 4096, "internal buffer size")
	timeout := flag.Duration("timeout", time.Second, "per-read deadline")
	last := flag.Bool("last", false, "drain the buffer and keep only the newest frame")
	flag.Parse()

	logging.ConfigureRuntime()

	if *uri == "" {
		fmt.Fprintln(os.Stderr, "usage: iocat -uri tcp://host:port [-terminator <bytes>] [-timeout 1s]")
		os.Exit(2)
	}

	drv := driverbase.New(*bufferSize, framer.Terminated([]byte(*terminator), *bufferSize))
	drv.SetExtractLastPacket(*last)
	if err := drv.OpenURI(*uri); err != nil {
		log.Fatal().Err(err).Str("uri", *uri).Msg("open failed")
	}
	defer drv.Close()

	buf := make([]byte, *bufferSize)
	for {
		n, err := drv.ReadPacket(buf, *timeout)
		var timeoutErr *driverbase.TimeoutError
		switch {
		case err == nil:
			fmt.Print(hex.Dump(buf[:n]))
		case errors.As(err, &timeoutErr):
			continue
		case errors.Is(err, driverbase.ErrEOF):
			s := drv.Status()
			log.Info().Uint64("good_rx", s.GoodRx).Uint64("bad_rx", s.BadRx).Msg("stream ended")
			return
		default:
			log.Fatal().Err(err).Msg("read failed")
		}
	}
}
