package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Per-level file names. Every identity level owns one directory under the
// project home holding these files.
const (
	MembershipFile  = "tax_clusters"
	AcceptedFile    = "repr_clusters"
	FlaggedFile     = "flag_clusters"
	CorrectionFile  = "repr_correction"
	ExclusionFile   = "excluded_clusters"
	ReviewStateFile = "review_state.yaml"
	FinalFile       = "final_repr"
)

// ConsensusConfig holds the thresholds used when resolving a cluster's
// representative taxonomy.
type ConsensusConfig struct {
	MaxSpeciesWords   int     `yaml:"max_species_words"`
	RankWindow        int     `yaml:"rank_window"`
	OutlierMinMembers int     `yaml:"outlier_min_members"`
	OutlierFraction   float64 `yaml:"outlier_fraction"`
}

// ReviewConfig holds review session behavior settings.
type ReviewConfig struct {
	ExcludeAll bool `yaml:"exclude_all"`
}

// Config holds mqrdb configuration.
type Config struct {
	Version     string          `yaml:"version"`
	LabelPrefix string          `yaml:"label_prefix"`
	Consensus   ConsensusConfig `yaml:"consensus,omitempty"`
	Review      ReviewConfig    `yaml:"review,omitempty"`
}

// DefaultConfig returns a Config with the standard curation thresholds.
func DefaultConfig() Config {
	return Config{
		Version:     "1",
		LabelPrefix: "MQR",
		Consensus: ConsensusConfig{
			MaxSpeciesWords:   6,
			RankWindow:        5,
			OutlierMinMembers: 10,
			OutlierFraction:   0.9,
		},
	}
}

// Store represents a loaded project home.
type Store struct {
	Home   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

// Home returns the project home, respecting the MQRDB_HOME env var.
func Home() string {
	if h := os.Getenv("MQRDB_HOME"); h != "" {
		return h
	}
	wd, err := os.Getwd()
	if err != nil {
		return "mqr_db"
	}
	return filepath.Join(wd, "mqr_db")
}

// Levels returns the identity levels of one curation run in processing
// order: 100 down to 90 in steps of one, then 85 down to 50 in steps of five.
func Levels() []int {
	var levels []int
	for id := 100; id >= 90; id-- {
		levels = append(levels, id)
	}
	for id := 85; id >= 50; id -= 5 {
		levels = append(levels, id)
	}
	return levels
}

// ValidLevel reports whether identity is one of Levels.
func ValidLevel(identity int) bool {
	for _, l := range Levels() {
		if l == identity {
			return true
		}
	}
	return false
}

// PreviousLevel returns the level processed just before identity. ok is
// false for the first level and for identities outside the chain.
func PreviousLevel(identity int) (int, bool) {
	levels := Levels()
	for i, l := range levels {
		if l == identity && i > 0 {
			return levels[i-1], true
		}
	}
	return 0, false
}

// FollowingLevel returns the level processed just after identity, without
// checking whether identity is finalized.
func FollowingLevel(identity int) (int, bool) {
	levels := Levels()
	for i, l := range levels {
		if l == identity && i < len(levels)-1 {
			return levels[i+1], true
		}
	}
	return 0, false
}

// Init creates the project home with one directory per identity level.
func Init(home string, force bool) error {
	if _, err := os.Stat(home); err == nil && !force {
		return fmt.Errorf("project home already exists at %s (use --force to reinitialize)", home)
	}

	dirs := []string{home}
	for _, l := range Levels() {
		dirs = append(dirs, filepath.Join(home, strconv.Itoa(l)))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Load reads an existing project home.
// Missing config fields are filled from defaults.
func Load(home string) (*Store, error) {
	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config at %s: %w", cfgPath, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	return &Store{Home: home, Config: cfg}, nil
}

// Validate rejects thresholds the consensus pass cannot use.
func (c Config) Validate() error {
	switch {
	case c.LabelPrefix == "":
		return fmt.Errorf("label_prefix must not be empty")
	case c.Consensus.MaxSpeciesWords < 1:
		return fmt.Errorf("consensus.max_species_words must be a positive integer")
	case c.Consensus.RankWindow < 1:
		return fmt.Errorf("consensus.rank_window must be a positive integer")
	case c.Consensus.OutlierMinMembers < 1:
		return fmt.Errorf("consensus.outlier_min_members must be a positive integer")
	case c.Consensus.OutlierFraction <= 0 || c.Consensus.OutlierFraction > 1:
		return fmt.Errorf("consensus.outlier_fraction must be a number in (0, 1]")
	}
	return nil
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	cfgPath := filepath.Join(s.Home, "config.yaml")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SetConfigValue sets a config value by dot-path key (e.g. "consensus.rank_window").
func (s *Store) SetConfigValue(key, value string) error {
	switch key {
	case "label_prefix":
		if value == "" {
			return fmt.Errorf("label_prefix must not be empty")
		}
		s.Config.LabelPrefix = value
	case "consensus.max_species_words":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("consensus.max_species_words must be a positive integer")
		}
		s.Config.Consensus.MaxSpeciesWords = n
	case "consensus.rank_window":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("consensus.rank_window must be a positive integer")
		}
		s.Config.Consensus.RankWindow = n
	case "consensus.outlier_min_members":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("consensus.outlier_min_members must be a positive integer")
		}
		s.Config.Consensus.OutlierMinMembers = n
	case "consensus.outlier_fraction":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("consensus.outlier_fraction must be a number in (0, 1]")
		}
		s.Config.Consensus.OutlierFraction = f
	case "review.exclude_all":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("review.exclude_all must be true or false")
		}
		s.Config.Review.ExcludeAll = b
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: label_prefix, consensus.max_species_words, consensus.rank_window, consensus.outlier_min_members, consensus.outlier_fraction, review.exclude_all", key)
	}
	return s.SaveConfig()
}

// Path resolves a path within the project home.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Home}, parts...)
	return filepath.Join(all...)
}

// LevelPath resolves a file within an identity level's directory.
func (s *Store) LevelPath(identity int, file string) string {
	return s.Path(strconv.Itoa(identity), file)
}

// NextLevel returns the identity level that follows identity. Levels form a
// strict chain: the next level may only start once this level's corrected
// table exists. ok is false when identity is the last level.
func (s *Store) NextLevel(identity int) (next int, ok bool, err error) {
	levels := Levels()
	for i, l := range levels {
		if l != identity {
			continue
		}
		if _, err := os.Stat(s.LevelPath(identity, FinalFile)); err != nil {
			return 0, false, fmt.Errorf("level %d is not finalized (missing %s): %w", identity, FinalFile, err)
		}
		if i == len(levels)-1 {
			return 0, false, nil
		}
		return levels[i+1], true, nil
	}
	return 0, false, fmt.Errorf("unknown identity level: %d", identity)
}

// CheckHealth verifies the project home structure.
func CheckHealth(home string) []Issue {
	var issues []Issue

	for _, l := range Levels() {
		p := filepath.Join(home, strconv.Itoa(l))
		info, err := os.Stat(p)
		if err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("missing directory: %s", p)})
		} else if !info.IsDir() {
			issues = append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", p)})
		}
	}

	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("cannot read config.yaml: %v", err)})
	} else {
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
		}
	}

	return issues
}

// CheckLevelIntegrity reports per-level files that are out of order, e.g. a
// flagged store without its accepted table, or a finalized level whose
// predecessor was never finalized.
func CheckLevelIntegrity(home string) []Issue {
	var issues []Issue
	exists := func(identity int, file string) bool {
		_, err := os.Stat(filepath.Join(home, strconv.Itoa(identity), file))
		return err == nil
	}

	levels := Levels()
	for i, l := range levels {
		if exists(l, FlaggedFile) && !exists(l, AcceptedFile) {
			issues = append(issues, Issue{"error", fmt.Sprintf("level %d: %s present without %s", l, FlaggedFile, AcceptedFile)})
		}
		if exists(l, CorrectionFile) && !exists(l, FlaggedFile) {
			issues = append(issues, Issue{"error", fmt.Sprintf("level %d: %s present without %s", l, CorrectionFile, FlaggedFile)})
		}
		if exists(l, FlaggedFile) && !exists(l, FinalFile) {
			issues = append(issues, Issue{"warning", fmt.Sprintf("level %d: prepared but not merged (run 'mqrdb review %d' and 'mqrdb merge %d')", l, l, l)})
		}
		if i > 0 && exists(l, FinalFile) && !exists(levels[i-1], FinalFile) {
			issues = append(issues, Issue{"error", fmt.Sprintf("level %d finalized before level %d", l, levels[i-1])})
		}
	}
	return issues
}

// FixIssues attempts to repair simple issues in the project home.
func FixIssues(home string) []string {
	var fixed []string

	for _, l := range Levels() {
		p := filepath.Join(home, strconv.Itoa(l))
		if _, err := os.Stat(p); err != nil {
			if err := os.MkdirAll(p, 0755); err == nil {
				fixed = append(fixed, fmt.Sprintf("recreated missing directory: %d", l))
			}
		}
	}

	cfgPath := filepath.Join(home, "config.yaml")
	if _, err := os.Stat(cfgPath); err != nil {
		cfg := DefaultConfig()
		data, _ := yaml.Marshal(cfg)
		if os.WriteFile(cfgPath, data, 0644) == nil {
			fixed = append(fixed, "recreated missing config.yaml with defaults")
		}
	}

	return fixed
}

// ScratchFiles lists leftover scratch files from interrupted writes.
func ScratchFiles(home string) []string {
	var stale []string
	for _, l := range Levels() {
		matches, err := filepath.Glob(filepath.Join(home, strconv.Itoa(l), "*.tmp-*"))
		if err != nil {
			continue
		}
		stale = append(stale, matches...)
	}
	return stale
}
