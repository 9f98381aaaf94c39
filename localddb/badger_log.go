package localddb

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// badgerLogger forwards badger's log output to zerolog. Badger terminates
// its format strings with newlines; those are stripped.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msg(badgerMsg(format, args))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msg(badgerMsg(format, args))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msg(badgerMsg(format, args))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msg(badgerMsg(format, args))
}

func badgerMsg(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
