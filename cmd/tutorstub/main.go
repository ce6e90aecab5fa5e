package main

import (
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/degreepathco/advisor/pkg/logger"
	"github.com/degreepathco/advisor/tutorstub"
)

func main() {
	// Parse command line flags
	listenAddr := flag.String("listen", ":8001", "Address to listen on")
	dbPath := flag.String("db", "", "Path to SQLite history database (default: in-memory)")
	repliesPath := flag.String("replies", "", "Path to a TOML reply book (default: built-in replies)")
	wordDelay := flag.Duration("word-delay", 30*time.Millisecond, "Pause between streamed words")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Set up logger
	logger := logger.New(*debug)
	defer logger.Sync()

	logger.Info("stub tutor service starting",
		zap.String("listen", *listenAddr),
		zap.Bool("debug", *debug),
	)

	config := tutorstub.Config{
		ListenAddr:  *listenAddr,
		DBPath:      *dbPath,
		RepliesPath: *repliesPath,
		WordDelay:   *wordDelay,
	}

	s, err := tutorstub.New(config, logger)
	if err != nil {
		logger.Fatal("failed to create stub server", zap.Error(err))
	}
	defer s.Close()

	if err := s.Run(); err != nil {
		logger.Fatal("stub server failed", zap.Error(err))
	}
}
