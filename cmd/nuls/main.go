package main

import (
	"expvar"
	"flag"
	"io"
	stlog "log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"runtime"

	"github.com/nushell-contrib/nuls"
)

// App version (set via linker flags -ldflags="-X main.appVersion=...")
var appVersion = "dev"

func main() {
	logLevelFlag := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFileFlag := flag.String("log-file", "nuls.log", "path of the server log file")
	debugAddrFlag := flag.String("debug-addr", "", "listen address for the pprof/expvar debug server (empty disables)")
	flag.Parse()

	// stdout carries the LSP stream, so all logging goes to stderr and a file.
	logFile, err := os.OpenFile(*logFileFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		stlog.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	logLevel, parseLevelErr := nuls.ParseLogLevel(*logLevelFlag)
	logWriter := io.MultiWriter(os.Stderr, logFile)
	handlerOpts := slog.HandlerOptions{Level: logLevel, AddSource: true}
	logger := slog.New(slog.NewTextHandler(logWriter, &handlerOpts))
	slog.SetDefault(logger)
	if parseLevelErr != nil {
		slog.Warn("Invalid log level flag, using default 'info'", "flag_value", *logLevelFlag, "error", parseLevelErr)
	}

	slog.Info("nuls LSP server starting...", "version", appVersion, "log_level", logLevel.String())

	if *debugAddrFlag != "" {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(1)
		startDebugServer(*debugAddrFlag)
	}

	compiler := nuls.NewNuCompiler(logger)
	lspServer, err := nuls.NewServer(compiler, logger, appVersion)
	if err != nil {
		slog.Error("Failed to initialize LSP server", "error", err)
		os.Exit(1)
	}

	// Run blocks until the connection closes.
	lspServer.Run(os.Stdin, os.Stdout)

	slog.Info("LSP server has shut down gracefully.")
}

// startDebugServer starts the HTTP server for pprof and expvar.
func startDebugServer(addr string) {
	go func() {
		slog.Info("Starting debug server for pprof/expvar", "addr", addr)
		debugMux := http.NewServeMux()
		debugMux.HandleFunc("/debug/pprof/", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/pprof/cmdline", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/pprof/profile", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/pprof/symbol", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/pprof/trace", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/vars", expvar.Handler().ServeHTTP)
		if err := http.ListenAndServe(addr, debugMux); err != nil {
			slog.Error("Debug server failed", "error", err)
		}
	}()
}
