package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/airenas/callrec/internal/pkg/locator"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/labstack/gommon/color"
)

type params struct {
	root      string
	number    string
	at        string
	window    time.Duration
	depth     int
	deep      bool
	brand     string
	noGetProp bool
}

func main() {
	p := params{}
	flag.StringVar(&p.root, "root", locator.DefaultRoot, "External storage root")
	flag.StringVar(&p.number, "number", "", "Dialed number to match")
	flag.StringVar(&p.at, "at", "", "Call time, RFC3339 (default now)")
	flag.DurationVar(&p.window, "window", 0, "Match window around the call time, 0 - name only")
	flag.IntVar(&p.depth, "depth", locator.DefaultDepth, "Deep search depth")
	flag.BoolVar(&p.deep, "deep", false, "Also run the deep search")
	flag.StringVar(&p.brand, "brand", "", "Device brand, read with getprop if empty")
	flag.BoolVar(&p.noGetProp, "no-getprop", false, "Do not call getprop")
	flag.Parse()

	if err := run(context.Background(), os.Stdout, p); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, p params) error {
	cl := color.New()
	cl.SetOutput(w)
	device := locator.Device{Brand: p.brand}
	if !p.noGetProp {
		device = locator.ReadDevice(ctx, device, locator.GetProp)
	}
	loc, err := locator.NewLocator(p.root, device)
	if err != nil {
		return err
	}
	loc.WithDepth(p.depth).WithMatchWindow(p.window)
	if err := loc.CheckAccess(); err != nil {
		return err
	}
	fmt.Fprintf(w, "root:   %s\nvendor: %s\n\n", loc.Root(), cl.Green(loc.Vendor()))

	dirs := loc.ListCandidateDirectories()
	fmt.Fprintf(w, "candidate dirs (%d):\n", len(dirs))
	for _, d := range dirs {
		fmt.Fprintf(w, "  %s\n", d)
	}
	var files []*persistence.RecordFile
	if p.deep {
		if files, err = loc.DeepSearch(ctx, p.depth); err != nil {
			return err
		}
		fmt.Fprintf(w, "\ndeep search (%d files)\n", len(files))
	} else {
		if files, err = loc.Scan(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "\nfiles (%d):\n", len(files))
	for _, f := range files {
		fmt.Fprintf(w, "  %s  %8d  %6s  %s\n", f.Created.Format(time.RFC3339), f.Size,
			f.Duration.Round(time.Second), f.Path)
	}
	if p.number == "" {
		return nil
	}
	at := time.Now()
	if p.at != "" {
		if at, err = time.Parse(time.RFC3339, p.at); err != nil {
			return fmt.Errorf("wrong time '%s': %w", p.at, err)
		}
	}
	m := locator.FindBestMatch(p.number, at, files, p.window)
	if m == nil {
		fmt.Fprintf(w, "\nmatch for %s: %s\n", p.number, cl.Red("none"))
		return nil
	}
	fmt.Fprintf(w, "\nmatch for %s: %s\n", p.number, cl.Green(m.Path))
	return nil
}
