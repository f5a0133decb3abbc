// Copyright 2023 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/blockscope/blockscope/pkg/audit"
	"github.com/blockscope/blockscope/pkg/config"
	"github.com/blockscope/blockscope/pkg/server"
	"github.com/blockscope/blockscope/pkg/util/logutil"
)

const (
	defaultConfigPath = "cmd/blockscope/config.yml"
	shutdownTimeout   = 10 * time.Second
)

var version = "blockscope version"

const (
	LogFileName                 = "logs/blockscope.log"
	LogOptionMaxSizeInMegaBytes = 500
	LogOptionMaxBackupsCount    = 10
	LogOptionMaxAgeInDays       = 0
	LogOptionCompress           = false
)

func main() {
	confFile := flag.String("config", defaultConfigPath, "Path to blockscope server configuration file")
	showVersion := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	logutil.SetupStandardLogger(logutil.RollingLogConf{
		FileName:           LogFileName,
		MaxSizeInMegaBytes: LogOptionMaxSizeInMegaBytes,
		MaxBackupsCount:    LogOptionMaxBackupsCount,
		MaxAgeInDays:       LogOptionMaxAgeInDays,
		Compress:           LogOptionCompress,
	})

	gin.SetMode(gin.ReleaseMode)

	log.Infof("Starting to read config file: %s", *confFile)
	cfg, err := config.NewConfig(*confFile)
	if err != nil {
		log.Fatalf("Failed to create config from %s: %v", *confFile, err)
	}
	logutil.SetLevel(cfg.LogLevel)

	if cfg.EnableAuditLogger {
		if err := audit.InitAudit(&cfg.AuditConfig); err != nil {
			log.Fatalf("Failed to init audit with error: %v", err)
		}
	}

	app, err := server.NewApp(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create blockscope app: %v", err)
	}
	svr := server.NewServer(app)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Infof("Received %v, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svr.Shutdown(ctx); err != nil {
			log.Warnf("Failed to shut down server gracefully: %v", err)
		}
	}()

	if cfg.Protocol == config.ProtocolHTTPS {
		log.Infof("Starting to serve request with https on port %d...", app.Port())
		err = svr.ListenAndServeTLS(cfg.TlsConfig.CertFile, cfg.TlsConfig.KeyFile)
	} else {
		log.Infof("Starting to serve request with http on port %d...", app.Port())
		err = svr.ListenAndServe()
	}
	app.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Something bad happens to server: %v", err)
	}
	log.Info("Server stopped")
}
