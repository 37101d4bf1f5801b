// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/pulsewatch/internal/config"
	"github.com/hamed0406/pulsewatch/internal/probe"
	"github.com/hamed0406/pulsewatch/internal/secrets"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	if strings.TrimSpace(cfg.SecretSeed) == "" {
		fail("SECRET_SEED is empty (the monitor refuses to start without it).")
	}
	kr, err := secrets.NewKeyring(cfg.SecretSeed, secrets.DefaultKeyBits)
	if err != nil {
		fail("SECRET_SEED: " + err.Error())
	}
	ok("keypair derived from SECRET_SEED")

	fleet, err := config.LoadFleet(cfg.FleetConfig)
	if err != nil {
		fail("FLEET_CONFIG: " + err.Error())
	}
	ok(fmt.Sprintf("FLEET_CONFIG=%s (%d services)", cfg.FleetConfig, len(fleet.Services)))

	// every target must be usable as-is or decrypt with this seed
	bad := 0
	for _, svc := range fleet.Services {
		typ := probe.EffectiveType(svc, fleet.Defaults)
		if _, err := kr.Resolve(svc.Target, secrets.DetectorFor(typ)); err != nil {
			warn(fmt.Sprintf("service %s (%s): target is undecipherable with this seed", svc.ID, typ))
			bad++
		}
	}
	if bad == 0 {
		ok("all targets resolve")
	}

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty (admin routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty (read routes are open).")
	}

	if cfg.RedisURL == "" {
		warn("REDIS_URL empty; hits are kept in memory and lost on restart.")
	} else {
		ok("REDIS_URL present")
	}
	if cfg.DatabaseURL != "" {
		ok("DATABASE_URL present (notification state in postgres)")
	}

	n := cfg.Notify
	if n.SMTPHost == "" && n.SendGridAPIKey == "" && n.SlackWebhook == "" {
		warn("no SMTP_HOST, SENDGRID_API_KEY or SLACK_WEBHOOK_URL; alerts are disabled.")
	} else if (n.SMTPHost != "" || n.SendGridAPIKey != "") && n.From == "" {
		warn("NOTIFY_FROM empty; email transports will not be built.")
	}

	if len(cfg.CORSOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; API allows any origin.")
	}

	ok("preflight passed")
}
