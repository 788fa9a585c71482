package main

import (
	"flag"
	"net/http"

	"github.com/sirupsen/logrus"
)

func main() {
	addr := flag.String("addr", ":3001", "listen address")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	srv := newServer(log)
	hub := newHub(srv, log)

	mux := http.NewServeMux()
	srv.routes(mux)
	mux.HandleFunc("GET /ws", hub.serveWS)

	log.WithField("addr", *addr).Info("directoryd listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
