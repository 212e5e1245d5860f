package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New 开发环境输出彩色控制台日志，生产环境输出 JSON 便于采集
// level 为空时开发环境用 debug，生产环境用 info
func New(environment, level string) zerolog.Logger {
	production := environment == "production"

	var out io.Writer = os.Stdout
	if !production {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(parseLevel(level, production))

	return zerolog.New(out).With().
		Timestamp().
		Str("service", "rmashqip").
		Str("env", environment).
		Logger()
}

func parseLevel(level string, production bool) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		return lvl
	}
	if production {
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
