package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/config"
	"github.com/canonbooks/canon/pkg/providers/googlebooks"
	"github.com/canonbooks/canon/pkg/providers/openlibrary"
	"github.com/canonbooks/canon/pkg/ratelimit"
	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

func main() {
	log := logger.New()

	var opts struct {
		Source          string        `short:"s" long:"source" choice:"google" choice:"openlibrary" default:"google" description:"The provider to fetch from"`
		ISBN            bool          `short:"i" long:"isbn" description:"Treat the argument as an ISBN instead of a volume ID"`
		Unauthenticated bool          `short:"u" long:"unauthenticated" description:"Don't send the Google Books API key"`
		Timeout         time.Duration `short:"t" long:"timeout" default:"10s" description:"Request timeout"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/fetch-volume [-s google|openlibrary] [-i] <volume id or isbn>")
		os.Exit(1)
	}

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	ctx := log.WithContext(context.Background())
	limiter := ratelimit.New("debug", 1, 1)

	var agg *aggregate.Aggregate
	switch opts.Source {
	case "openlibrary":
		client := openlibrary.NewClient(cfg.OpenLibraryBaseURL, opts.Timeout, limiter)
		edition, err := client.ByISBN(ctx, args[0])
		if err != nil {
			log.Err(err).Fatal("open library fetch error")
		}
		agg = openlibrary.MapEdition(edition)
	default:
		client := googlebooks.NewClient(cfg.GoogleBooksBaseURL, cfg.GoogleBooksAPIKey, opts.Timeout, limiter)
		mode := googlebooks.Authenticated
		if opts.Unauthenticated || !client.HasAPIKey() {
			mode = googlebooks.Unauthenticated
		}

		var volume *googlebooks.Volume
		if opts.ISBN {
			volume, err = client.ByISBN(ctx, args[0], mode)
		} else {
			volume, err = client.Volume(ctx, args[0], mode)
		}
		if err != nil {
			log.Err(err).Fatal("google books fetch error")
		}
		agg = googlebooks.MapVolume(volume)
	}

	if agg == nil {
		fmt.Println("The record has no title, so it would not be stored.")
		os.Exit(1)
	}

	out, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		log.Err(err).Fatal("json marshal error")
	}
	fmt.Println(string(out))
}
