// Package logstore is a journal that only logs record writes. The daemon uses
// it when no database is configured.
package logstore

import (
	"encoding/json"

	"github.com/phuslu/log"
)

type LogStore struct {
	log log.Logger
}

func NewStore(level log.Level) *LogStore {
	l := &LogStore{}
	l.log = log.DefaultLogger
	l.log.Level = level
	l.log.Context = log.NewContext(nil).Str("module", "logstore").Value()
	return l
}

func (l *LogStore) SetWriter(w log.Writer) {
	l.log.Writer = w
}

func (l *LogStore) Record(key string, doc json.RawMessage) {
	l.log.Info().Str("key", key).RawJSON("doc", doc).Msg("record written")
}
