// Package validation checks that backing services named in REQUIRE_SERVICES
// are reachable before the server starts taking traffic.
package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soundbay/backend/internal/logger"
	"go.uber.org/zap"
)

// Known service names
const (
	ServiceElasticsearch = "elasticsearch"
	ServiceS3            = "s3"
	ServiceRedis         = "redis"
	ServiceFFmpeg        = "ffmpeg"
	ServiceSES           = "ses"
)

const defaultCheckTimeout = 10 * time.Second

// Check probes one service
type Check func(ctx context.Context) error

// ServiceValidator handles validation of optional services
type ServiceValidator struct {
	required []string
	checks   map[string]Check
	timeout  time.Duration
}

// NewServiceValidator creates a validator for the given service names
func NewServiceValidator(required []string) *ServiceValidator {
	names := make([]string, 0, len(required))
	for _, r := range required {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			names = append(names, r)
		}
	}
	return &ServiceValidator{
		required: names,
		checks:   make(map[string]Check),
		timeout:  defaultCheckTimeout,
	}
}

// Register installs the probe for a service name
func (sv *ServiceValidator) Register(name string, check Check) {
	sv.checks[strings.ToLower(name)] = check
}

// Known lists the registered service names
func (sv *ServiceValidator) Known() []string {
	names := make([]string, 0, len(sv.checks))
	for name := range sv.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateServices probes every required service and fails on the first
// one that is unknown or unreachable.
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.required) == 0 {
		logger.Log.Debug("No required services configured for validation")
		return nil
	}

	logger.Log.Info("Validating required services", zap.Strings("services", sv.required))

	for _, name := range sv.required {
		check, ok := sv.checks[name]
		if !ok {
			return fmt.Errorf("required service %q is not a known service (known: %s)", name, strings.Join(sv.Known(), ", "))
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, sv.timeout)
		err := check(timeoutCtx)
		cancel()
		if err != nil {
			logger.Log.Error("Required service validation failed", zap.String("service", name), zap.Error(err))
			return fmt.Errorf("required service %q validation failed: %w", name, err)
		}

		logger.Log.Info("Service validated", zap.String("service", name))
	}
	return nil
}
