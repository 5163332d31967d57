// Copyright (c) Chilsonite Authors. All Rights Reserved.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/chilsonite/chilsonite/agent"
	"github.com/chilsonite/chilsonite/internal/log"
)

func main() {
	app := cli.NewApp()
	app.Name = "agent"
	app.Usage = "agent [ws_url]"
	app.Description = "Chilsonite agent: dials out to a CServer and relays sessions"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "geoip-url",
			Usage: "external geolocation endpoint used to gather public_ip/country_code at startup",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("agent startup error: %+v", err)
	}
}

func run(c *cli.Context) error {
	log.SetDebug(c.Bool("debug"))

	wsURL := c.Args().First()
	if wsURL == "" {
		wsURL = "ws://127.0.0.1:3005"
	}

	var opts []agent.Option
	if url := c.String("geoip-url"); url != "" {
		opts = append(opts, agent.WithGeoipURL(url))
	}

	a := agent.New(wsURL, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sg := make(chan os.Signal, 1)
	signal.Notify(sg, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sg
		log.Printf("agent got signal %v, shutting down", sig)
		cancel()
	}()

	return a.Run(ctx)
}
