package monitoring

import (
	"net/http"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/user"
	"nuha.dev/ravevision/internal/util"
	"nuha.dev/ravevision/internal/web/stat"
)

type Snapshotter interface {
	Snapshot() store.Snapshot
}

type ConnectionCounter interface {
	Connections() int
	Stats() stat.Report
}

type MonitoringServer struct {
	store   Snapshotter
	conns   ConnectionCounter
	log     log.Logger
	started time.Time
}

type GroupStatus struct {
	Members int `json:"members"`
	Online  int `json:"online"`
}

type Status struct {
	Records     int                    `json:"records"`
	Connections int                    `json:"connections"`
	Groups      map[string]GroupStatus `json:"groups"`
	Uptime      string                 `json:"uptime"`
	Stats       *stat.Report           `json:"stats,omitempty"`
}

func NewMonApi(st Snapshotter, conns ConnectionCounter) *MonitoringServer {
	m := &MonitoringServer{}
	m.store = st
	m.conns = conns
	m.started = time.Now()
	m.log = log.DefaultLogger
	m.log.Context = log.NewContext(nil).Str("module", "monitoring").Value()
	return m
}

func (m *MonitoringServer) Status() Status {
	snap := m.store.Snapshot()
	res := Status{Records: len(snap), Groups: make(map[string]GroupStatus)}
	for key, raw := range snap {
		doc, err := user.DecodeDocument(raw)
		if err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("undecodable record")
			continue
		}
		g := user.GroupKey(doc.GroupName)
		st := res.Groups[g]
		st.Members++
		if doc.Online {
			st.Online++
		}
		res.Groups[g] = st
	}
	if m.conns != nil {
		res.Connections = m.conns.Connections()
		st := m.conns.Stats()
		res.Stats = &st
	}
	res.Uptime = time.Since(m.started).Truncate(time.Second).String()
	return res
}

func (m *MonitoringServer) serve_http(w http.ResponseWriter, r *http.Request) {
	if err := util.JsonWrite(w, m.Status()); err != nil {
		m.log.Error().Err(err).Msg("error writing status")
	}
}

func (m *MonitoringServer) GetHandler() http.Handler {
	return http.HandlerFunc(m.serve_http)
}
