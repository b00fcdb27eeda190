// Command zwave-trace prints frames recorded by zwave-home's frame trace.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/tracelog"
)

func main() {
	dir := flag.String("dir", "", "only frames in this direction (rx or tx)")
	fn := flag.String("func", "", "only frames with this function id, e.g. 0x04")
	since := flag.Duration("since", 0, "only frames recorded within this long before now")
	errorsOnly := flag.Bool("errors", false, "only frames traced with an error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] trace-file\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	filter, err := buildFilter(*dir, *fn, *since, *errorsOnly, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := dump(os.Stdout, flag.Arg(0), filter); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildFilter(dir, fn string, since time.Duration, errorsOnly bool, now time.Time) (tracelog.Filter, error) {
	f := tracelog.Filter{ErrorsOnly: errorsOnly}
	switch serialapi.Direction(dir) {
	case "":
	case serialapi.DirectionRX, serialapi.DirectionTX:
		f.Direction = serialapi.Direction(dir)
	default:
		return f, fmt.Errorf("invalid direction %q", dir)
	}
	if fn != "" {
		id, err := strconv.ParseUint(fn, 0, 8)
		if err != nil {
			return f, fmt.Errorf("invalid function id %q: %w", fn, err)
		}
		function := serialapi.Function(id)
		f.Function = &function
	}
	if since > 0 {
		f.TimeStart = now.Add(-since)
	}
	return f, nil
}

func dump(w io.Writer, path string, filter tracelog.Filter) error {
	r, err := tracelog.NewReader(path, filter)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, formatRecord(rec))
	}
}

func formatRecord(rec tracelog.Record) string {
	line := fmt.Sprintf("%s %s", rec.Timestamp.Format(time.RFC3339Nano), rec.Direction)
	if f, err := rec.Frame(); err == nil {
		line += fmt.Sprintf(" %s % X", f.Function, []byte(f.Payload))
	} else {
		line += fmt.Sprintf(" raw=% X", rec.Raw)
	}
	if rec.Error != "" {
		line += " err=" + rec.Error
	}
	return line
}
