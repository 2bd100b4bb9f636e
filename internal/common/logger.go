package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	loggerMu     sync.Mutex
	globalLogger arbor.ILogger
)

func consoleWriterConfig() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	}
}

// GetLogger returns the process-wide logger. Before InitLogger runs it
// hands out a console-only logger so early code paths can still log.
func GetLogger() arbor.ILogger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleWriterConfig())
	}
	return globalLogger
}

// InitLogger builds the logger from config.Logging and installs it as
// the process-wide logger. File output goes to logs/<project>.log next
// to the executable.
func InitLogger(config *Config) arbor.ILogger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	logger := arbor.NewLogger()

	attached := 0
	for _, output := range config.Logging.Output {
		switch output {
		case "stdout", "console":
			logger = logger.WithConsoleWriter(consoleWriterConfig())
			attached++
		case "file":
			fileCfg, err := fileWriterConfig()
			if err != nil {
				fmt.Printf("Warning: file logging disabled: %v\n", err)
				continue
			}
			logger = logger.WithFileWriter(fileCfg)
			attached++
		default:
			fmt.Printf("Warning: unknown log output %q ignored\n", output)
		}
	}

	// A logger with no writers swallows everything. Keep the console as
	// the floor.
	if attached == 0 {
		logger = logger.WithConsoleWriter(consoleWriterConfig())
	}

	logger = logger.WithLevelFromString(config.Logging.Level)

	globalLogger = logger
	return logger
}

func fileWriterConfig() (models.WriterConfiguration, error) {
	execPath, err := os.Executable()
	if err != nil {
		return models.WriterConfiguration{}, fmt.Errorf("failed to resolve executable path: %w", err)
	}

	logsDir := filepath.Join(filepath.Dir(execPath), "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return models.WriterConfiguration{}, fmt.Errorf("failed to create logs directory: %w", err)
	}

	return models.WriterConfiguration{
		Type:             models.LogWriterTypeFile,
		FileName:         filepath.Join(logsDir, ProjectName+".log"),
		TimeFormat:       "15:04:05",
		MaxSize:          100 * 1024 * 1024,
		MaxBackups:       3,
		TextOutput:       true,
		DisableTimestamp: false,
	}, nil
}

// GetLogFilePath reports where the logger writes its file output, or ""
// when file output is off.
func GetLogFilePath(logger arbor.ILogger) string {
	if logger == nil {
		return ""
	}
	return logger.GetLogFilePath()
}
