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

	"github.com/Woolyenough/ofm-viewer/daemon/webd"
	"github.com/Woolyenough/ofm-viewer/params"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var optHTTPAddr string
var optTileSource string
var optTileJSON string
var optNoFetch bool

// webdCmd represents the serve command
var webdCmd = &cobra.Command{
	Use:   "webd",
	Short: "Start the webserver",
	Long:  `Serves viewport frames, tile listings, and imagery over HTTP and websocket`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		slog.Info("webd.Run")

		config := params.DefaultWebDaemonConfig()
		config.Address = optHTTPAddr
		if optNoFetch {
			config.FetchConfig = nil
		} else {
			if optTileSource != "" {
				config.FetchConfig.SourceURL = optTileSource
			}
			if optTileJSON != "" {
				config.FetchConfig.TileJSONURL = optTileJSON
			}
		}

		server, err := webd.NewWebDaemon(config)
		if err != nil {
			log.Fatalln(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()

		if err := server.Run(ctx); err != nil {
			log.Fatalln(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(webdCmd)

	defaults := params.DefaultWebDaemonConfig()

	pFlags := webdCmd.PersistentFlags()
	pFlags.AddFlagSet(&pflag.FlagSet{})
	pFlags.StringVar(&optHTTPAddr, "address", defaults.Address, "HTTP address to listen on")
	pFlags.StringVar(&optTileSource, "source", "", "tile URL template or s3://bucket/prefix (overrides TileJSON discovery)")
	pFlags.StringVar(&optTileJSON, "tilejson", defaults.FetchConfig.TileJSONURL, "TileJSON endpoint to discover the tile source from")
	pFlags.BoolVar(&optNoFetch, "no-fetch", false, "serve only tiles inserted by other producers")
}
