package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/veritag-systems/rfid-label-agent/printer"
	"github.com/veritag-systems/rfid-label-agent/reader"
	"github.com/veritag-systems/rfid-label-agent/server"
)

func main() {
	viper.AutomaticEnv()
	viper.SetDefault("LISTEN_ADDRESS", "localhost:8787")
	viper.SetDefault("PRINTER_MODE", "network")
	viper.SetDefault("PRINTER_HOST", "")
	viper.SetDefault("PRINTER_PORT", printer.DefaultPort)
	viper.SetDefault("PRINTER_NAME", "")
	viper.SetDefault("PRINTER_LANGUAGE", "auto")
	viper.SetDefault("BACKUP_DIR", defaultBackupDir())
	viper.SetDefault("MDNS_ENABLED", true)
	viper.SetDefault("LOG_LEVEL", "info")

	log := newLogger(viper.GetString("LOG_LEVEL"))

	mode, err := printer.ParseMode(viper.GetString("PRINTER_MODE"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid PRINTER_MODE")
	}
	selection, err := printer.ParseSelection(viper.GetString("PRINTER_LANGUAGE"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid PRINTER_LANGUAGE")
	}
	target := printer.Target{
		Mode:       mode,
		Host:       viper.GetString("PRINTER_HOST"),
		Port:       viper.GetInt("PRINTER_PORT"),
		DeviceName: viper.GetString("PRINTER_NAME"),
	}

	// USB delivery degrades through spooler and device-node fallbacks when no
	// claimable printer interface is present, so a failed open is not fatal.
	endpoint, err := printer.OpenUSBEndpoint(0, 0)
	if err != nil {
		log.Warn().Err(err).Msg("no claimable USB printer; relying on spooler or device-node delivery")
	} else {
		defer endpoint.Close()
	}

	prober := printer.NewDetector()
	coord := printer.NewCoordinator(
		printer.NewNetworkSender(),
		printer.NewUSBSender(endpoint),
		prober,
		viper.GetString("BACKUP_DIR"),
		log,
	)

	tagReader := reader.New()
	log.Info().Stringer("state", tagReader.State()).Msg("tag reader initialized")

	srv := server.New(coord, tagReader, prober, server.Config{
		Address:    viper.GetString("LISTEN_ADDRESS"),
		Target:     target,
		Language:   selection,
		EnableMDNS: viper.GetBool("MDNS_ENABLED"),
	}, log)

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("agent exited")
	}
}

func defaultBackupDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rfid_exports"
	}
	return filepath.Join(home, "rfid_exports")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}
