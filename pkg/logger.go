package s800

type Logger interface {
	Info(message string, module string)
	Error(string)
}

type discardLogger struct{}

func (discardLogger) Info(string, string) {}
func (discardLogger) Error(string)        {}

var logger Logger = discardLogger{}

// verbosity gates the chatty Info messages, same levels as the configuration file.
var verbosity int

func SetLogger(l Logger) {
	if l == nil {
		l = discardLogger{}
	}
	logger = l
}

func SetVerbosity(level int) {
	verbosity = level
}
