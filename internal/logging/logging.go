package logging

import (
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init 解析日志级别并配置输出目标。logFile 为 console 时输出到标准错误，
// 否则写入带滚动策略的日志文件。
func Init(logLevel string, logFile string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	if logFile != "" && logFile != "console" {
		lumberjackLogger := &lumberjack.Logger{
			Filename:   filepath.ToSlash(logFile),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		log.SetOutput(io.Writer(lumberjackLogger))
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
	return nil
}
