package main

import (
	log "github.com/mgutz/logxi/v1"
)

// Levels are controlled with the LOGXI environment variable, e.g.
// LOGXI=*=INF,db=DBG.
var (
	logger    = log.New("beacon-parser")
	dbLog     = log.New("db")
	pubsubLog = log.New("pubsub")
	kafkaLog  = log.New("kafka")
	mqttLog   = log.New("mqtt")
	influxLog = log.New("influx")
)

func head(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func ptrIntStr(p *int) any {
	if p == nil {
		return "nil"
	}
	return *p
}
