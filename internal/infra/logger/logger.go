package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDKey is the context key the HTTP layer stores the correlation
// identifier under.
type RequestIDKey struct{}

// New builds the service logger. Production gets JSON output; everything
// else gets the colored development console encoder.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProductionConfig().Build()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// MaskEmail keeps at most the first three characters of the local part and
// the whole domain: john.doe@example.com becomes joh***@example.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}

	local := email[:at]
	if len(local) > 3 {
		local = local[:3]
	}
	return local + "***" + email[at:]
}

// MaskPhone keeps the last four digits: +14155550142 becomes ***0142.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}

// MaskIP hides the host portion. IPv4 keeps the first two octets, IPv6 the
// first four groups.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if octets := strings.Split(ip, "."); len(octets) == 4 {
		return octets[0] + "." + octets[1] + ".*.*"
	}
	if groups := strings.Split(ip, ":"); len(groups) >= 4 {
		return strings.Join(groups[:4], ":") + ":*:*:*:*"
	}

	return "***"
}
