/* Attach to a KISS TNC and print decoded traffic. */
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	keeshond "github.com/doismellburning/keeshond/src"
)

var (
	configPath  = pflag.StringP("config", "c", "keeshond.yaml", "station configuration file")
	metricsAddr = pflag.String("metrics", "", "listen address for Prometheus metrics (empty disables)")
	verbose     = pflag.BoolP("verbose", "v", false, "debug logging")
)

func main() {
	pflag.Parse()

	var logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	keeshond.SetLogger(logger)

	var conf, err = keeshond.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("configuration", "err", err)
	}

	var stack *keeshond.Stack
	if stack, err = keeshond.NewStack(conf); err != nil {
		logger.Fatal("stack", "err", err)
	}
	defer stack.Close()

	if *metricsAddr != "" {
		var reg = prometheus.NewRegistry()
		keeshond.RegisterMetrics(reg)
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Error("metrics listener failed", "err", err)
			}
		}()
	}

	stack.AX25.ReceivedMsg.Connect(func(ev keeshond.ReceivedFrame) {
		fmt.Println(ev.Frame)
	})
	stack.APRS.ReceivedMsg.Connect(func(rx keeshond.ReceivedAPRS) {
		switch p := rx.Payload.(type) {
		case *keeshond.APRSMessage:
			logger.Info("message", "from", rx.Frame.Path.Src, "to", p.Addressee,
				"text", p.Text, "msgid", p.MsgID)
		case *keeshond.APRSPosition:
			logger.Info("position", "from", rx.Frame.Path.Src,
				"lat", p.Pos.Lat.Degrees(), "lng", p.Pos.Lng.Degrees())
		case *keeshond.APRSMicE:
			logger.Info("mic-e", "from", rx.Frame.Path.Src,
				"lat", p.Pos.Lat.Degrees(), "lng", p.Pos.Lng.Degrees(),
				"status", p.Status)
		}
	})

	logger.Info("listening", "mycall", conf.MyCall, "device", conf.Device.Type)

	var sig = make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}
