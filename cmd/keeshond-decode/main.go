/* Decode AX.25 / APRS frames from hex dumps on stdin. */
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	keeshond "github.com/doismellburning/keeshond/src"
)

var (
	kissFramed = pflag.BoolP("kiss", "k", false, "input is KISS framed (with FEND delimiters and escapes)")
	mod128     = pflag.Bool("mod128", false, "decode modulo-128 control fields")
)

func main() {
	pflag.Parse()

	var logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	keeshond.SetLogger(logger)

	var dec keeshond.KISSDecoder
	var scanner = bufio.NewScanner(os.Stdin)
	var lineno = 0
	for scanner.Scan() {
		lineno++
		var text = strings.Join(strings.Fields(scanner.Text()), "")
		if text == "" {
			continue
		}

		var raw, err = hex.DecodeString(text)
		if err != nil {
			logger.Error("bad hex", "line", lineno, "err", err)
			continue
		}

		if *kissFramed {
			for _, kf := range dec.Feed(raw) {
				if kf.Cmd != keeshond.KISSCmdData {
					logger.Info("KISS command frame", "port", kf.Port, "cmd", kf.Cmd)
					continue
				}
				decodeOne(logger, lineno, kf.Data)
			}
		} else {
			decodeOne(logger, lineno, raw)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal("read stdin", "err", err)
	}
}

func decodeOne(logger *log.Logger, lineno int, raw []byte) {
	var f, err = keeshond.DecodeFrame(raw, keeshond.DecodeOptions{Mod128: *mod128})
	if err != nil {
		logger.Error("undecodable frame", "line", lineno, "err", err)
		return
	}

	fmt.Println(f)

	var payload, aprsErr = keeshond.ParseAPRS(f)
	if aprsErr != nil {
		return
	}
	switch p := payload.(type) {
	case *keeshond.APRSMessage:
		fmt.Printf("  message to %s: %q msgid=%q\n", p.Addressee, p.Text, p.MsgID)
	case *keeshond.APRSAckReject:
		var verb = "ack"
		if p.Reject {
			verb = "rej"
		}
		fmt.Printf("  %s to %s for msgid %s\n", verb, p.Addressee, p.MsgID)
	case *keeshond.APRSPosition:
		fmt.Printf("  position %.6f, %.6f %q\n", p.Pos.Lat.Degrees(), p.Pos.Lng.Degrees(), p.Comment)
	case *keeshond.APRSMicE:
		fmt.Printf("  MIC-E %.6f, %.6f course %.0f speed %.0f kn (%s)\n",
			p.Pos.Lat.Degrees(), p.Pos.Lng.Degrees(), p.CourseDeg, p.SpeedKnots, p.Status)
	case *keeshond.APRSStatus:
		fmt.Printf("  status %q\n", p.Text)
	}
}
