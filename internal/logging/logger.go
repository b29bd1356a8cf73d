package logging

import "github.com/sadlil/gologger"

var Logger gologger.GoLogger = gologger.GetLogger(gologger.CONSOLE, gologger.SimpleLog)

// SetFileLogger switches logging to the given file, used when LOG_FILE is
// configured.
func SetFileLogger(fileLog string) {
	Logger = gologger.GetLogger(gologger.FILE, fileLog)
	Logger.Info("Start program")
}
