package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

const (
	DefaultLogFile    = "./logs/circlepay.log"
	DefaultMaxSizeMB  = 100
	DefaultMaxAgeDays = 7
)

// FileConfig controls the rotating log file
type FileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxAgeDays int
}

var (
	mu     sync.RWMutex
	logger = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
)

// FileConfigFromEnv reads LOGFILE, LOGFILE_MAX_SIZE_MB and LOGFILE_MAX_AGE_DAYS,
// falling back to defaults for anything unset.
func FileConfigFromEnv() (FileConfig, error) {
	cfg := FileConfig{
		Filename:   DefaultLogFile,
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxAgeDays: DefaultMaxAgeDays,
	}
	if logFile := os.Getenv("LOGFILE"); logFile != "" {
		cfg.Filename = "./logs/" + logFile
	}
	if v := os.Getenv("LOGFILE_MAX_SIZE_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid value for LOGFILE_MAX_SIZE_MB: %w", err)
		}
		cfg.MaxSizeMB = n
	}
	if v := os.Getenv("LOGFILE_MAX_AGE_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid value for LOGFILE_MAX_AGE_DAYS: %w", err)
		}
		cfg.MaxAgeDays = n
	}
	return cfg, nil
}

// InitFile redirects all log output to a lumberjack rotating file. When
// alsoStderr is set lines are duplicated to stderr.
func InitFile(cfg FileConfig, alsoStderr bool) {
	if cfg.Filename == "" {
		cfg.Filename = DefaultLogFile
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = DefaultMaxAgeDays
	}
	var w io.Writer = &lumberjack.Logger{
		Filename: cfg.Filename,
		MaxSize:  cfg.MaxSizeMB, // megabytes
		MaxAge:   cfg.MaxAgeDays,
	}
	if alsoStderr {
		w = io.MultiWriter(w, os.Stderr)
	}
	SetOutput(w)
}

// SetOutput replaces the log destination
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

func printf(color, level, category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[%s][%s]%s", color, level, category, ColorReset)
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Printf("%s: %s", coloredCategory, message)
}

func Info(category string, content ...interface{}) {
	printf(ColorGreen, "INFO", category, content...)
}

func Error(category string, content ...interface{}) {
	printf(ColorRed, "ERROR", category, content...)
}

func Warn(category string, content ...interface{}) {
	printf(ColorYellow, "WARN", category, content...)
}

func Debug(category string, content ...interface{}) {
	printf(ColorBlue, "DEBUG", category, content...)
}

// Errorf logs an error message and returns a formatted error
func Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	Error("ERROR", err.Error())
	return err
}
