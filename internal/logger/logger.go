package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once  sync.Once
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

var (
	AppName = "repoguard-backend"
	LogPath = "logs/app.log"
)

func Init() {
	once.Do(func() {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   LogPath,
			MaxSize:    50, // MB
			MaxBackups: 7,
			MaxAge:     30, // days
			Compress:   true,
		})

		level := zapcore.InfoLevel
		if os.Getenv("LOG_LEVEL") == "debug" {
			level = zapcore.DebugLevel
		}

		core := zapcore.NewTee(
			zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level),
			zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), fileWriter, level),
		)

		log = zap.New(core,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(zap.String("app", AppName)),
		)
		sugar = log.Sugar()
	})
}

func Get() *zap.Logger {
	Init()
	return log
}

// Sugar returns the process-wide sugared logger.
func Sugar() *zap.SugaredLogger {
	Init()
	return sugar
}

// Named returns a component-scoped sugared logger.
func Named(name string) *zap.SugaredLogger {
	Init()
	return sugar.Named(name)
}
