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
	"time"

	"github.com/pingcap/errors"
	"github.com/urfave/cli"

	"github.com/chilsonite/chilsonite/internal/config"
	"github.com/chilsonite/chilsonite/internal/log"
	"github.com/chilsonite/chilsonite/registry"
	"github.com/chilsonite/chilsonite/server"
	"github.com/chilsonite/chilsonite/tokengate"
)

const tokenCacheTTL = 30 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "cserver"
	app.Description = "Chilsonite coordinator: Agent gate + SOCKS5 front-end"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config,c",
			Usage: "path to the CServer TOML config file",
		},
		cli.StringFlag{
			Name:  "token-store",
			Usage: "base URL of the external token validation service",
			Value: "http://127.0.0.1:8080",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("cserver startup error: %+v", err)
	}
}

func run(c *cli.Context) error {
	log.SetDebug(c.Bool("debug"))

	var cfg config.CServer
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return errors.Annotate(err, "load config")
		}
	} else {
		cfg = config.Default()
	}

	validator := tokengate.NewCachingValidator(
		tokengate.NewHTTPValidator(c.String("token-store")),
		tokenCacheTTL,
	)

	srv := server.New(cfg, registry.New(), validator)
	return srv.ListenAndServe(context.Background())
}
