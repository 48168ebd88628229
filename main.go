package main

import (
	"flag"
	"net/http"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/endpoints"
	"github.com/bidfuse/bidfuse-server/router"
	"github.com/bidfuse/bidfuse-server/server"
)

// Rev holds the binary revision string.
// Set at build time using:
//
//	go build -ldflags "-X main.Rev=`git rev-parse --short HEAD`"
var Rev string

const configFileName = "bidfuse"

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	if err := serve(Rev, cfg); err != nil {
		glog.Exitf("bidfuse-server failed: %v", err)
	}
}

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(revision string, cfg *config.Configuration) error {
	r, err := router.New(cfg)
	if err != nil {
		return err
	}

	corsRouter := router.SupportCORS(r)
	server.Listen(cfg, router.NoCache{Handler: corsRouter}, adminHandler(revision), r.Metrics)
	return nil
}

func adminHandler(revision string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", endpoints.NewVersionEndpoint(revision))
	return mux
}
