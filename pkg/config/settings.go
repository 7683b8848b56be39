// Package config loads client settings and the knowledge interaction
// catalog.
//
// Settings come from, highest priority first: the process environment
// (KE_ prefix), the YAML section "ke", a dotenv file, and defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
)

const (
	EnvPrefix            = "KE_"
	DefaultEnvFile       = ".env"
	DefaultRestEndpoint  = "http://localhost:8280/rest/"
	DefaultKIConfigPath  = "ki_conf.yml"
	DefaultReasonerLevel = 1
	DefaultAdminAddr     = "127.0.0.1:8091"

	DefaultRequestTimeout = 30 * time.Second
	DefaultPollDelay      = 60 * time.Second

	settingsSection = "ke"
	restSuffix      = "/rest/"
)

// Settings configure one knowledge base client.
type Settings struct {
	KnowledgeBaseID  string
	RestEndpoint     string
	KIConfigPath     string
	KIConfigVarsPath string
	ReasonerLevel    int
	KIVars           map[string]string
	VerifyCert       bool

	RequestTimeout time.Duration
	PollDelay      time.Duration

	// JournalPath is a SQLite file; RedisAddr selects a Redis journal instead.
	JournalPath string
	RedisAddr   string
	AdminAddr   string

	// ArchiveDir enables archiving SQLite journal events older than
	// ArchiveRetention into gzipped blobs below the directory.
	ArchiveDir       string
	ArchiveRetention time.Duration
}

// fileSettings is the "ke" YAML section. Pointers tell unset from zero.
type fileSettings struct {
	KnowledgeBaseID  *string           `yaml:"knowledge_base_id"`
	RestEndpoint     *string           `yaml:"rest_endpoint"`
	KIConfigPath     *string           `yaml:"ki_config_path"`
	KIConfigVarsPath *string           `yaml:"ki_config_vars_path"`
	ReasonerLevel    *int              `yaml:"reasoner_level"`
	KIVars           map[string]string `yaml:"ki_vars"`
	VerifyCert       *bool             `yaml:"verify_cert"`
	RequestTimeout   *string           `yaml:"request_timeout"`
	PollDelay        *string           `yaml:"poll_delay"`
	JournalPath      *string           `yaml:"journal_path"`
	RedisAddr        *string           `yaml:"redis_addr"`
	AdminAddr        *string           `yaml:"admin_addr"`
	ArchiveDir       *string           `yaml:"archive_dir"`
	ArchiveRetention *string           `yaml:"archive_retention"`
}

// Defaults returns settings with every default applied.
func Defaults() *Settings {
	kiConfigPath := DefaultKIConfigPath
	if p := os.Getenv("KI_CONFIG_PATH"); p != "" {
		kiConfigPath = p
	}
	return &Settings{
		RestEndpoint:  DefaultRestEndpoint,
		KIConfigPath:  kiConfigPath,
		ReasonerLevel: DefaultReasonerLevel,
		VerifyCert:    true,
		AdminAddr:     DefaultAdminAddr,

		RequestTimeout: DefaultRequestTimeout,
		PollDelay:      DefaultPollDelay,
	}
}

// Load builds settings from defaults, envFile, the "ke" section of yamlPath
// and the environment. Empty paths are skipped; a missing envFile is not an
// error.
func Load(yamlPath, envFile string) (*Settings, error) {
	s := Defaults()

	if envFile != "" {
		dotenv, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, kerrors.Config("load "+envFile, err, "failed to read env file: %v", err)
		}
		if err := s.applyVars(dotenv); err != nil {
			return nil, err
		}
	}

	if yamlPath != "" {
		if err := s.applyYAML(yamlPath); err != nil {
			return nil, err
		}
	}

	if err := s.applyVars(environ()); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			out[k] = v
		}
	}
	return out
}

// applyVars overlays KE_-prefixed variables. Keys are case-insensitive.
func (s *Settings) applyVars(vars map[string]string) error {
	for key, value := range vars {
		upper := strings.ToUpper(key)
		if !strings.HasPrefix(upper, EnvPrefix) {
			continue
		}
		if err := s.set(strings.TrimPrefix(upper, EnvPrefix), value); err != nil {
			return kerrors.Config("settings", err, "invalid %s: %v", upper, err)
		}
	}
	return nil
}

func (s *Settings) set(name, value string) error {
	switch name {
	case "KNOWLEDGE_BASE_ID":
		s.KnowledgeBaseID = value
	case "REST_ENDPOINT":
		s.RestEndpoint = value
	case "KI_CONFIG_PATH":
		s.KIConfigPath = value
	case "KI_CONFIG_VARS_PATH":
		s.KIConfigVarsPath = value
	case "REASONER_LEVEL":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.ReasonerLevel = n
	case "KI_VARS":
		vars := map[string]any{}
		if err := json.Unmarshal([]byte(value), &vars); err != nil {
			return err
		}
		s.KIVars = scalars(vars, false)
	case "VERIFY_CERT":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		s.VerifyCert = b
	case "REQUEST_TIMEOUT":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		s.RequestTimeout = d
	case "POLL_DELAY":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		s.PollDelay = d
	case "JOURNAL_PATH":
		s.JournalPath = value
	case "REDIS_ADDR":
		s.RedisAddr = value
	case "ADMIN_ADDR":
		s.AdminAddr = value
	case "ARCHIVE_DIR":
		s.ArchiveDir = value
	case "ARCHIVE_RETENTION":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		s.ArchiveRetention = d
	}
	return nil
}

func (s *Settings) applyYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return kerrors.Config("load "+path, err, "failed to read settings: %v", err)
	}
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return kerrors.Config("load "+path, err, "invalid YAML: %v", err)
	}
	node, ok := doc[settingsSection]
	if !ok {
		return kerrors.Config("load "+path, nil, "invalid setting section %s", settingsSection)
	}
	var fs fileSettings
	if err := node.Decode(&fs); err != nil {
		return kerrors.Config("load "+path, err, "invalid %s section: %v", settingsSection, err)
	}

	setString(&s.KnowledgeBaseID, fs.KnowledgeBaseID)
	setString(&s.RestEndpoint, fs.RestEndpoint)
	setString(&s.KIConfigPath, fs.KIConfigPath)
	setString(&s.KIConfigVarsPath, fs.KIConfigVarsPath)
	setString(&s.JournalPath, fs.JournalPath)
	setString(&s.RedisAddr, fs.RedisAddr)
	setString(&s.AdminAddr, fs.AdminAddr)
	setString(&s.ArchiveDir, fs.ArchiveDir)
	if fs.ReasonerLevel != nil {
		s.ReasonerLevel = *fs.ReasonerLevel
	}
	if fs.VerifyCert != nil {
		s.VerifyCert = *fs.VerifyCert
	}
	if fs.KIVars != nil {
		s.KIVars = fs.KIVars
	}
	if fs.RequestTimeout != nil {
		if s.RequestTimeout, err = time.ParseDuration(*fs.RequestTimeout); err != nil {
			return kerrors.Config("load "+path, err, "invalid request_timeout: %v", err)
		}
	}
	if fs.PollDelay != nil {
		if s.PollDelay, err = time.ParseDuration(*fs.PollDelay); err != nil {
			return kerrors.Config("load "+path, err, "invalid poll_delay: %v", err)
		}
	}
	if fs.ArchiveRetention != nil {
		if s.ArchiveRetention, err = time.ParseDuration(*fs.ArchiveRetention); err != nil {
			return kerrors.Config("load "+path, err, "invalid archive_retention: %v", err)
		}
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// Validate normalizes the knowledge base id and endpoint and checks the
// reasoner level. An empty knowledge base id is allowed until it is needed.
func (s *Settings) Validate() error {
	if s.KnowledgeBaseID != "" {
		id, err := ValidateKnowledgeBaseID(s.KnowledgeBaseID)
		if err != nil {
			return err
		}
		s.KnowledgeBaseID = id
	}
	endpoint, err := ValidateEndpoint(s.RestEndpoint)
	if err != nil {
		return err
	}
	s.RestEndpoint = endpoint
	if s.ReasonerLevel < 1 || s.ReasonerLevel > 4 {
		return kerrors.Config("settings", nil, "reasoner level must be between 1 and 4, got %d", s.ReasonerLevel)
	}
	return nil
}

// RequireKnowledgeBaseID fails when no knowledge base id is configured.
func (s *Settings) RequireKnowledgeBaseID() error {
	if s.KnowledgeBaseID == "" {
		return kerrors.Config("settings", nil, "knowledge_base_id is not set, export %sKNOWLEDGE_BASE_ID", EnvPrefix)
	}
	return nil
}

// ValidateKnowledgeBaseID accepts http and https URIs and strips one
// trailing "/" from the path. Query and fragment are dropped.
func ValidateKnowledgeBaseID(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", kerrors.Config("knowledge base id", err, "invalid uri %q: %v", uri, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", kerrors.Config("knowledge base id", nil, "invalid uri scheme %s in %s", u.Scheme, uri)
	}
	path := strings.TrimSuffix(u.Path, "/")
	return u.Scheme + "://" + u.Host + path, nil
}

// ValidateEndpoint makes the endpoint end with "/" and checks it points at
// the broker's REST root.
func ValidateEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return DefaultRestEndpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", kerrors.Config("rest endpoint", err, "invalid rest endpoint %q", endpoint)
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if !strings.HasSuffix(endpoint, restSuffix) {
		return "", kerrors.Config("rest endpoint", nil, "rest endpoint %q must end with %s", endpoint, restSuffix)
	}
	return endpoint, nil
}

// Vars returns the substitution variables for catalog files: ki_vars, then
// the ki_vars section of the vars file with upper-cased keys, then KB_ID.
func (s *Settings) Vars() (map[string]string, error) {
	if err := s.RequireKnowledgeBaseID(); err != nil {
		return nil, err
	}
	vars := make(map[string]string, len(s.KIVars)+1)
	for k, v := range s.KIVars {
		vars[k] = v
	}

	if s.KIConfigVarsPath != "" {
		raw, err := os.ReadFile(s.KIConfigVarsPath)
		if err != nil {
			return nil, kerrors.Config("load "+s.KIConfigVarsPath, err, "failed to read vars file: %v", err)
		}
		var doc map[string]map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, kerrors.Config("load "+s.KIConfigVarsPath, err, "invalid YAML: %v", err)
		}
		section, ok := doc["ki_vars"]
		if !ok {
			return nil, kerrors.Config("load "+s.KIConfigVarsPath, nil, "invalid setting section ki_vars")
		}
		for k, v := range scalars(section, true) {
			vars[k] = v
		}
	}

	vars["KB_ID"] = s.KnowledgeBaseID
	return vars, nil
}

// scalars keeps string and number values, optionally upper-casing keys.
func scalars(in map[string]any, upper bool) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if upper {
			k = strings.ToUpper(k)
		}
		switch x := v.(type) {
		case string:
			out[k] = x
		case int, int64, float64:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}
