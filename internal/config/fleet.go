package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const (
	DefaultIntervalMs = 60_000
	DefaultTimeoutMs  = 10_000
	DefaultRetention  = 10_000
)

// LoadFleet reads the fleet file, applies defaults and environment
// overrides, and validates service ids. Services without an id are dropped;
// duplicate ids are an error.
func LoadFleet(path string) (*domain.Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("fleet file %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read fleet: %w", err)
	}
	return ParseFleet(data)
}

func ParseFleet(data []byte) (*domain.Fleet, error) {
	f := defaultFleet()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fleet: %w", err)
	}
	applyFleetEnvOverrides(&f)

	if f.Defaults.IntervalMs <= 0 {
		f.Defaults.IntervalMs = DefaultIntervalMs
	}
	if f.Defaults.TimeoutMs <= 0 {
		f.Defaults.TimeoutMs = DefaultTimeoutMs
	}
	if f.Defaults.Retention <= 0 {
		f.Defaults.Retention = DefaultRetention
	}

	seen := make(map[domain.ServiceID]struct{}, len(f.Services))
	services := f.Services[:0]
	for _, s := range f.Services {
		s.ID = domain.ServiceID(strings.TrimSpace(string(s.ID)))
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("parse fleet: duplicate service id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		services = append(services, s)
	}
	f.Services = services
	return &f, nil
}

func defaultFleet() domain.Fleet {
	return domain.Fleet{
		Workspace: domain.Workspace{ID: "default"},
		Defaults: domain.Defaults{
			IntervalMs: DefaultIntervalMs,
			TimeoutMs:  DefaultTimeoutMs,
			Retention:  DefaultRetention,
		},
	}
}

func applyFleetEnvOverrides(f *domain.Fleet) {
	if v := os.Getenv("PULSEWATCH_WORKSPACE_ID"); v != "" {
		f.Workspace.ID = v
	}
	if v := os.Getenv("PULSEWATCH_DEFAULT_TYPE"); v != "" {
		f.Defaults.Type = v
	}
	if v := os.Getenv("PULSEWATCH_DEFAULT_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.Defaults.IntervalMs = n
		}
	}
	if v := os.Getenv("PULSEWATCH_DEFAULT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.Defaults.TimeoutMs = n
		}
	}
	if v := os.Getenv("PULSEWATCH_RETENTION"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.Defaults.Retention = n
		}
	}
	if v := os.Getenv("PULSEWATCH_MIN_OUTAGE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.Defaults.MinOutageMs = n
		}
	}
	if v := os.Getenv("PULSEWATCH_NOTIFY_RECIPIENTS"); v != "" {
		f.Workspace.Notifications.Recipients = splitList(v)
	}
}
