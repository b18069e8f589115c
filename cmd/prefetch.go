/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Woolyenough/ofm-viewer/app"
	"github.com/Woolyenough/ofm-viewer/fetch"
	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

var optBBox []float64

// prefetchCmd represents the prefetch command
var prefetchCmd = &cobra.Command{
	Use:   "prefetch",
	Short: "Fill the tile cache for a bounding box",
	Long: `Downloads every tile intersecting the given bounding box at the
reference zoom and stores the imagery in the local tile cache, so a
later webd run can serve it without touching the network.`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)

		if len(optBBox) != 4 {
			log.Fatalln("--bbox wants minLon,minLat,maxLon,maxLat")
		}
		bound := orb.Bound{
			Min: orb.Point{optBBox[0], optBBox[1]},
			Max: orb.Point{optBBox[2], optBBox[3]},
		}

		config := params.DefaultFetchConfig()
		if optTileSource != "" {
			config.SourceURL = optTileSource
		}
		if optTileJSON != "" {
			config.TileJSONURL = optTileJSON
		}

		engine := app.NewEngine(nil)
		f, err := fetch.NewFetcher(config, engine)
		if err != nil {
			log.Fatalln(err)
		}
		defer f.Close()

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()

		if err := f.ResolveSource(ctx); err != nil {
			log.Fatalln(err)
		}

		missing := engine.MissingInBound(bound)
		slog.Info("Prefetching", "bbox", optBBox, "tiles", len(missing))
		n := f.FetchIndices(ctx, missing)
		_, bytes := f.Stats()
		slog.Info("Prefetch done", "fetched", n,
			"total", humanize.Bytes(uint64(bytes)))
	},
}

func init() {
	rootCmd.AddCommand(prefetchCmd)

	pFlags := prefetchCmd.PersistentFlags()
	pFlags.Float64SliceVar(&optBBox, "bbox", nil, "bounding box as minLon,minLat,maxLon,maxLat")
	pFlags.StringVar(&optTileSource, "source", "", "tile URL template or s3://bucket/prefix")
	pFlags.StringVar(&optTileJSON, "tilejson", params.DefaultFetchConfig().TileJSONURL, "TileJSON endpoint to discover the tile source from")
}
