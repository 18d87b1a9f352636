package utils

import (
	"log/slog"
	"os"
	"strings"
)

// Los paquetes de la VM loguean aunque ningún módulo haya llamado a InicializarLogger
var (
	InfoLog  = slog.Default()
	ErrorLog = slog.Default()
)

// InicializarLogger configura los loggers globales
func InicializarLogger(logLevel string, moduleName string) {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: NivelLog(logLevel),
	})

	logger := slog.New(handler).With("modulo", moduleName)

	InfoLog = logger
	ErrorLog = logger
}

// NivelLog traduce el LOG_LEVEL de la configuración a un nivel de slog
func NivelLog(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
