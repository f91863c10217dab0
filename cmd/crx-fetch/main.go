// Command crx-fetch downloads a Chrome extension package and unpacks it.
//
// The argument is either an extension ID, resolved through the Web Store
// update endpoint, or a full URL to a .crx file. The raw container is always
// written next to the destination directory before extraction is attempted,
// so a decode failure never loses the downloaded bytes.
//
// Exit codes: 1 for usage errors, 2 when the download fails, 3 when the
// container cannot be decoded or extracted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	crx "github.com/Maksandre/crx-fetch"
	"github.com/Maksandre/crx-fetch/fetch"
)

const (
	exitUsage   = 1
	exitFetch   = 2
	exitExtract = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		outDir  = flag.String("o", "", "destination directory (default: the extension ID)")
		keep    = flag.String("keep", "", "path for the raw .crx copy (default: <dest>.crx)")
		list    = flag.Bool("list", false, "list archive entries instead of extracting")
		workers = flag.Int("workers", 0, "concurrent file writers (0 or 1 extracts serially)")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: crx-fetch [flags] <extension-id | url>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return exitUsage
	}
	arg := flag.Arg(0)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	url := arg
	if !strings.HasPrefix(arg, "http://") && !strings.HasPrefix(arg, "https://") {
		url = fetch.StoreURL(arg)
	}
	dest := *outDir
	if dest == "" {
		if url == arg {
			dest = "unpacked"
		} else {
			dest = arg
		}
	}
	rawPath := *keep
	if rawPath == "" {
		rawPath = dest + ".crx"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info("downloading", "url", url)
	buf, err := fetch.Fetch(ctx, url, fetch.WithLogger(log))
	if err != nil {
		log.Error("download failed", "url", url, "error", err)
		return exitFetch
	}

	// The raw copy is written before any decoding so that malformed
	// containers can still be inspected.
	if err := os.WriteFile(rawPath, buf, 0o644); err != nil {
		log.Error("writing raw package failed", "path", rawPath, "error", err)
		return exitFetch
	}
	log.Info("saved package", "path", rawPath, "bytes", len(buf))

	if *list {
		archive, err := crx.StripHeader(buf)
		if err != nil {
			log.Error("decoding container failed", "error", err)
			return exitExtract
		}
		entries, err := crx.List(archive)
		if err != nil {
			log.Error("parsing archive failed", "error", err)
			return exitExtract
		}
		for _, e := range entries {
			fmt.Printf("%10d  %s\n", e.UncompressedSize, e.Name)
		}
		return 0
	}

	err = crx.Unpack(buf, dest,
		crx.ExtractWithWorkers(*workers),
		crx.ExtractWithLogger(log),
	)
	if err != nil {
		log.Error("extraction failed", "dest", dest, "error", err)
		return exitExtract
	}
	log.Info("unpacked", "dest", dest)
	return 0
}
