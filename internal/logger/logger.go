// Package logger — логирование с префиксом сервиса и асинхронной записью:
// горутины приложения не блокируются на I/O стандартного log.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

const queueSize = 8192

// slowCallThreshold — порог для LogDuration при LOG_LEVEL=info.
const slowCallThreshold = 100 * time.Millisecond

type level int

const (
	levelDebug level = iota
	levelInfo
)

var (
	prefix   string
	logLevel = levelInfo
	queue    chan string
	once     sync.Once
)

func start() {
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "trace":
		logLevel = levelDebug
	}
	queue = make(chan string, queueSize)
	go func() {
		for line := range queue {
			log.Print(line)
		}
	}()
}

func enqueue(line string) {
	once.Do(start)
	select {
	case queue <- line:
	default:
		// Очередь заполнена — лог теряется, но приложение не блокируется.
	}
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// SetPrefix задаёт префикс сервиса для всех последующих логов ("api", "files", "push").
func SetPrefix(p string) {
	prefix = p
}

// Info пишет сообщение с префиксом (асинхронно).
func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

// Infof форматирует и пишет с префиксом (асинхронно).
func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	if logLevel != levelDebug {
		return
	}
	enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

// Errorf форматирует ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration логирует имя операции и время выполнения в миллисекундах.
// При LOG_LEVEL=info пишутся только вызовы дольше slowCallThreshold; при debug — все.
func LogDuration(op string, start time.Time) {
	elapsed := time.Since(start)
	if logLevel == levelDebug || elapsed >= slowCallThreshold {
		enqueue(fmt.Sprintf("%sop=%s duration_ms=%d", tag(), op, elapsed.Milliseconds()))
	}
}

// DeferLogDuration — для defer: defer logger.DeferLogDuration("msg.Append", time.Now())().
func DeferLogDuration(op string, start time.Time) func() {
	return func() { LogDuration(op, start) }
}
