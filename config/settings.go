package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds application level configuration. Connection strings for the
// databases are read by the Init* functions in this package.
type Settings struct {
	Port string

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTTTL       time.Duration
	CookieSecure bool

	Vapi VapiSettings

	GCSBucket    string
	GCPProjectID string
	GCPLocation  string
	GeminiModel  string

	ReportWorkers int

	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string
}

type VapiSettings struct {
	APIKey        string
	AssistantID   string
	BaseURL       string
	WebhookSecret string
}

// LoadSettings reads Settings from the environment and validates them.
func LoadSettings() (Settings, error) {
	s := Settings{
		Port:         envOr("PORT", "8080"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTIssuer:    strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		JWTAudience:  strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		CookieSecure: strings.EqualFold(os.Getenv("COOKIE_SECURE"), "true"),
		Vapi: VapiSettings{
			APIKey:        os.Getenv("VAPI_API_KEY"),
			AssistantID:   strings.TrimSpace(os.Getenv("VAPI_ASSISTANT_ID")),
			BaseURL:       envOr("VAPI_BASE_URL", "https://api.vapi.ai"),
			WebhookSecret: os.Getenv("VAPI_WEBHOOK_SECRET"),
		},
		GCSBucket:    strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		GCPProjectID: strings.TrimSpace(os.Getenv("GCP_PROJECT_ID")),
		GCPLocation:  envOr("GCP_LOCATION", "us-central1"),
		GeminiModel:  strings.TrimSpace(os.Getenv("GEMINI_MODEL")),

		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
	}

	var errs []error
	ttl, err := durationOr("JWT_TTL", 24*time.Hour)
	if err != nil {
		errs = append(errs, err)
	}
	s.JWTTTL = ttl

	workers, err := intOr("REPORT_WORKERS", 3)
	if err != nil {
		errs = append(errs, err)
	}
	s.ReportWorkers = workers

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	var errs []error
	if s.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if n, err := strconv.Atoi(s.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid port, got %q", s.Port))
	}
	if s.JWTTTL <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL must be positive, got %s", s.JWTTTL))
	}
	if s.ReportWorkers < 0 {
		errs = append(errs, fmt.Errorf("REPORT_WORKERS must be >= 0, got %d", s.ReportWorkers))
	}
	// A call can only be dialed with both values present.
	if (s.Vapi.APIKey == "") != (s.Vapi.AssistantID == "") {
		errs = append(errs, errors.New("VAPI_API_KEY and VAPI_ASSISTANT_ID must be set together"))
	}
	return errors.Join(errs...)
}

// VoiceEnabled reports whether interview sessions can dial the voice platform.
func (s Settings) VoiceEnabled() bool {
	return s.Vapi.APIKey != "" && s.Vapi.AssistantID != ""
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intOr(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
