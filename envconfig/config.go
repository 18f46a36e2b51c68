// config.go - Haupt-Konfigurationsfunktionen fuer infercore
//
// Dieses Modul enthaelt:
// - Host: Adresse des HTTP-Servers (INFERCORE_HOST)
// - AllowedOrigins: erlaubte CORS-Origins (INFERCORE_ORIGINS)
// - LogLevel: Log-Level (INFERCORE_DEBUG)
// - Var: Liest eine Environment-Variable
//
// Backend- und Geraete-Variablen liegen in config_features.go,
// Getter-Konstruktoren und AsMap/Values in config_utils.go.
package envconfig

import (
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

const defaultPort = "11480"

// Host gibt Scheme und Host zurueck
// Konfigurierbar via INFERCORE_HOST
// Default: http://127.0.0.1:11480
func Host() *url.URL {
	raw := Var("INFERCORE_HOST")

	scheme, hostport, port := "http", raw, defaultPort
	if s, rest, ok := strings.Cut(raw, "://"); ok {
		scheme, hostport = s, rest
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	return &url.URL{
		Scheme: scheme,
		Host:   joinHostPort(hostport, port),
		Path:   path,
	}
}

// joinHostPort ergaenzt fehlenden Host oder Port
func joinHostPort(hostport, fallback string) string {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = strings.Trim(hostport, "[]"), fallback
		if host == "" {
			host = "127.0.0.1"
		}
	}

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		slog.Warn("invalid port, using default", "port", port, "default", fallback)
		port = fallback
	}
	return net.JoinHostPort(host, port)
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via INFERCORE_ORIGINS (komma-separiert)
// Loopback-Origins sind immer erlaubt
func AllowedOrigins() (origins []string) {
	for _, origin := range strings.Split(Var("INFERCORE_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	for _, host := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		for _, scheme := range []string{"http", "https"} {
			origins = append(origins,
				scheme+"://"+host,
				scheme+"://"+net.JoinHostPort(host, "*"),
			)
		}
	}
	return origins
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via INFERCORE_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	s := Var("INFERCORE_DEBUG")
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return slog.LevelDebug
		}
		return slog.LevelInfo
	}
	if n, err := strconv.Atoi(s); err == nil {
		return slog.Level(-4 * n)
	}
	return slog.LevelInfo
}

// Var gibt eine Environment-Variable ohne Quotes und Leerzeichen zurueck
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
