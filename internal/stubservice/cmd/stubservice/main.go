// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command stubservice accepts the editor command line
//
//	stubservice <project descriptor> -run=<mode> -port=<n> -unattended -nopause -nullrhi -LOG=<file>
//
// and serves the stub API on 127.0.0.1:<port>. Its misbehavior is driven by environment:
//
//	STUB_READY_AFTER      health answers 503 for this long (duration, bare int = seconds)
//	STUB_IGNORE_SHUTDOWN  acknowledge /api/shutdown but keep running
//	STUB_IGNORE_SIGTERM   ignore SIGTERM and SIGINT
//	STUB_EXIT_AFTER       exit on its own after this long
//	STUB_EXIT_CODE        exit code used with STUB_EXIT_AFTER
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/united-manufacturing-hub/lifecycle-harness/internal/stubservice"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/env"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envReadyAfter     = "STUB_READY_AFTER"
	envIgnoreShutdown = "STUB_IGNORE_SHUTDOWN"
	envIgnoreSigterm  = "STUB_IGNORE_SIGTERM"
	envExitAfter      = "STUB_EXIT_AFTER"
	envExitCode       = "STUB_EXIT_CODE"
)

type commandLine struct {
	descriptor string
	runMode    string
	port       int
	logFile    string
}

func parseCommandLine(args []string) (commandLine, error) {
	if len(args) == 0 {
		return commandLine{}, fmt.Errorf("missing project descriptor")
	}

	cl := commandLine{descriptor: args[0]}

	fs := flag.NewFlagSet("stubservice", flag.ContinueOnError)
	fs.StringVar(&cl.runMode, "run", "", "commandlet to run")
	fs.IntVar(&cl.port, "port", 0, "listen port")
	fs.StringVar(&cl.logFile, "LOG", "", "service log file")
	fs.Bool("unattended", false, "")
	fs.Bool("nopause", false, "")
	fs.Bool("nullrhi", false, "")

	if err := fs.Parse(args[1:]); err != nil {
		return commandLine{}, err
	}

	if cl.port <= 0 {
		return commandLine{}, fmt.Errorf("invalid -port %d", cl.port)
	}

	return cl, nil
}

func newLogger(logFile string) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stdout), zapcore.InfoLevel),
	}

	if logFile != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.AddSync(&lumberjack.Logger{Filename: logFile, MaxSize: 10}),
			zapcore.DebugLevel,
		))
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar().Named("LogBlueprintMCP")
}

func main() {
	os.Exit(run())
}

func run() int {
	cl, err := parseCommandLine(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "stubservice: %v\n", err)

		return 2
	}

	log := newLogger(cl.logFile)
	defer func() { _ = log.Sync() }()

	readyAfter, _ := env.GetAsDuration(envReadyAfter, false, 0)
	ignoreShutdown, _ := env.GetAsBool(envIgnoreShutdown, false, false)
	ignoreSigterm, _ := env.GetAsBool(envIgnoreSigterm, false, false)
	exitAfter, _ := env.GetAsDuration(envExitAfter, false, 0)
	exitCode, _ := env.GetAsInt(envExitCode, false, 1)

	sigCh := make(chan os.Signal, 1)
	if ignoreSigterm {
		signal.Ignore(syscall.SIGTERM, syscall.SIGINT)
	} else {
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cl.port)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "stubservice: listen failed: %v\n", err)

		return 3
	}

	server := stubservice.New(stubservice.Options{
		ReadyAfter:     readyAfter,
		IgnoreShutdown: ignoreShutdown,
	}, log)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	log.Infof("Project %s, mode %s, listening on port %d", cl.descriptor, cl.runMode, cl.port)
	fmt.Fprintln(os.Stderr, "stubservice: stderr is attached")

	var exitTimer <-chan time.Time
	if exitAfter > 0 {
		exitTimer = time.After(exitAfter)
	}

	code := 0

	select {
	case <-server.ShutdownRequested():
		log.Info("Shutdown requested over HTTP")
	case sig := <-sigCh:
		log.Infof("Received %s", sig)
	case <-exitTimer:
		log.Errorf("Crashing on purpose with code %d", exitCode)
		code = exitCode
	case err := <-serveErr:
		log.Errorf("Server stopped: %v", err)
		code = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_ = server.Close(ctx)

	return code
}
