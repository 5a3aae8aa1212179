package pagequery

import (
	"log"
	"os"
)

var (
	// Logger is the default package logger.
	Logger = log.New(os.Stderr, "pagequery ", log.LstdFlags)
)

// LogFunc is the signature of the logging funcs accepted by WithLogf,
// WithDebugf and WithErrorf.
type LogFunc = func(string, ...interface{})

func nopLogf(string, ...interface{}) {}
