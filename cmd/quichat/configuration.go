// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/identity"
	"github.com/dtn7/quichat/pkg/localaddr"
	"github.com/dtn7/quichat/pkg/quicl"
	"github.com/dtn7/quichat/pkg/session"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Profiling bool
	Logging   logConf
	Room      roomConf
	TLS       tlsConf `toml:"tls"`
	Discovery discoveryConf
	Web       webConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// roomConf describes the Room-configuration block.
type roomConf struct {
	Code         string
	Host         string
	LocalAddress string   `toml:"local-address"`
	ALPN         []string `toml:"alpn"`
	Relay        bool
	WriteTimeout string `toml:"write-timeout"`
	DialTimeout  string `toml:"dial-timeout"`
	StopTimeout  string `toml:"stop-timeout"`
}

// tlsConf describes the TLS-configuration block.
type tlsConf struct {
	Cert               string
	Key                string
	Watch              bool
	ServerName         string `toml:"server-name"`
	InsecureSkipVerify *bool  `toml:"insecure-skip-verify"`
	CA                 string `toml:"ca"`
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4          bool
	IPv6          bool
	Interval      string
	LookupTimeout string `toml:"lookup-timeout"`
}

// webConf describes the Web-configuration block for browser observers.
type webConf struct {
	Listen string
}

// parseConfig reads the TOML configuration and configures the logger accordingly.
func parseConfig(filename string) (conf tomlConfig, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	configureLogging(conf.Logging)
	return
}

func configureLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseDuration of a configuration field, an empty value results in zero.
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	} else if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %v", field, d)
	}
	return d, nil
}

func (conf tomlConfig) addresses() localaddr.Source {
	if conf.Room.LocalAddress != "" {
		return localaddr.Static(conf.Room.LocalAddress)
	}
	return nil
}

func (conf tomlConfig) transport() (quicl.Config, error) {
	transport := quicl.DefaultConfig()

	if d, err := parseDuration("room.write-timeout", conf.Room.WriteTimeout); err != nil {
		return quicl.Config{}, err
	} else if d > 0 {
		transport.WriteTimeout = d
	}

	return transport, nil
}

func (conf tomlConfig) discovery() (discoConf session.DiscoveryConfig, err error) {
	discoConf.IPv4 = conf.Discovery.IPv4
	discoConf.IPv6 = conf.Discovery.IPv6

	if discoConf.Interval, err = parseDuration("discovery.interval", conf.Discovery.Interval); err != nil {
		return
	}
	discoConf.LookupTimeout, err = parseDuration("discovery.lookup-timeout", conf.Discovery.LookupTimeout)
	return
}

// serverConfig for a session.Server, without its OnReceive callback.
func (conf tomlConfig) serverConfig() (serverConf session.ServerConfig, err error) {
	serverConf = session.ServerConfig{
		Code:             conf.Room.Code,
		Addresses:        conf.addresses(),
		Host:             conf.Room.Host,
		CertFile:         conf.TLS.Cert,
		KeyFile:          conf.TLS.Key,
		WatchCertificate: conf.TLS.Watch,
		ALPN:             conf.Room.ALPN,
		Relay:            conf.Room.Relay,
	}

	if serverConf.Transport, err = conf.transport(); err != nil {
		return
	}
	if serverConf.Discovery, err = conf.discovery(); err != nil {
		return
	}
	serverConf.StopTimeout, err = parseDuration("room.stop-timeout", conf.Room.StopTimeout)
	return
}

// insecure reports if the server's certificate should not be verified, which is the default.
func (conf tomlConfig) insecure() bool {
	return conf.TLS.InsecureSkipVerify == nil || *conf.TLS.InsecureSkipVerify
}

// clientConfig for a session.Client joining the room code, without its OnReceive callback.
func (conf tomlConfig) clientConfig(code string) (clientConf session.ClientConfig, err error) {
	clientConf = session.ClientConfig{
		Code:      code,
		Addresses: conf.addresses(),
		ALPN:      conf.Room.ALPN,
	}

	serverName := conf.TLS.ServerName
	if serverName == "" {
		serverName = identity.DefaultCommonName
	}

	insecure := conf.insecure()
	if insecure {
		log.Warn("Server certificates will not be verified, set tls.insecure-skip-verify to false to change this")
	} else {
		log.WithFields(log.Fields{
			"server name": serverName,
			"ca":          conf.TLS.CA,
		}).Info("Server certificates will be verified")
	}

	if clientConf.TLS, err = identity.ClientTLSConfig(serverName, conf.Room.ALPN, insecure, conf.TLS.CA); err != nil {
		return
	}

	if clientConf.Transport, err = conf.transport(); err != nil {
		return
	}
	if clientConf.Discovery, err = conf.discovery(); err != nil {
		return
	}
	if clientConf.DialTimeout, err = parseDuration("room.dial-timeout", conf.Room.DialTimeout); err != nil {
		return
	}
	clientConf.StopTimeout, err = parseDuration("room.stop-timeout", conf.Room.StopTimeout)
	return
}
