package store

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestInit(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "mqr_db")

	if err := Init(home, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for _, l := range Levels() {
		p := filepath.Join(home, strconv.Itoa(l))
		info, err := os.Stat(p)
		if err != nil {
			t.Errorf("expected directory %s to exist", p)
		} else if !info.IsDir() {
			t.Errorf("expected %s to be a directory", p)
		}
	}

	if _, err := os.Stat(filepath.Join(home, "config.yaml")); err != nil {
		t.Error("expected config.yaml to exist")
	}

	// Second init should fail without force
	if err := Init(home, false); err == nil {
		t.Error("expected error on duplicate init")
	}

	if err := Init(home, true); err != nil {
		t.Errorf("expected force init to succeed: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "mqr_db")
	Init(home, false)

	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Home != home {
		t.Errorf("expected Home=%s, got %s", home, s.Home)
	}
}

func TestLevelPath(t *testing.T) {
	s := &Store{Home: "/tmp/mqr_db"}
	got := s.LevelPath(95, FlaggedFile)
	want := filepath.Join("/tmp/mqr_db", "95", "flag_clusters")
	if got != want {
		t.Errorf("LevelPath() = %s, want %s", got, want)
	}
}

func TestLevels(t *testing.T) {
	levels := Levels()
	if len(levels) != 19 {
		t.Fatalf("expected 19 levels, got %d: %v", len(levels), levels)
	}
	if levels[0] != 100 || levels[10] != 90 || levels[11] != 85 || levels[len(levels)-1] != 50 {
		t.Errorf("unexpected level order: %v", levels)
	}
	if !ValidLevel(75) || ValidLevel(87) {
		t.Error("ValidLevel disagrees with Levels")
	}
}

func TestNextLevel_RequiresFinalizedLevel(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "mqr_db")
	Init(home, false)
	s, _ := Load(home)

	if _, _, err := s.NextLevel(100); err == nil {
		t.Fatal("expected error for unfinalized level")
	}

	os.WriteFile(s.LevelPath(100, FinalFile), []byte("MQR_100_1\tBacteria\n"), 0644)
	next, ok, err := s.NextLevel(100)
	if err != nil || !ok || next != 99 {
		t.Errorf("NextLevel(100) = %d, %v, %v; want 99, true, nil", next, ok, err)
	}

	os.WriteFile(s.LevelPath(50, FinalFile), []byte(""), 0644)
	if _, ok, err := s.NextLevel(50); err != nil || ok {
		t.Errorf("NextLevel(50) should report end of chain, got ok=%v err=%v", ok, err)
	}

	if _, _, err := s.NextLevel(42); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCheckHealth(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "mqr_db")
	Init(home, false)

	issues := CheckHealth(home)
	if len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}

	os.RemoveAll(filepath.Join(home, "95"))
	issues = CheckHealth(home)
	if len(issues) == 0 {
		t.Error("expected issues after removing level dir")
	}

	fixed := FixIssues(home)
	if len(fixed) != 1 {
		t.Errorf("expected one fix, got %v", fixed)
	}
	if issues := CheckHealth(home); len(issues) != 0 {
		t.Errorf("expected no issues after fix, got %v", issues)
	}
}

func TestCheckLevelIntegrity(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "mqr_db")
	Init(home, false)

	os.WriteFile(filepath.Join(home, "100", FlaggedFile), []byte("#\n"), 0644)
	os.WriteFile(filepath.Join(home, "99", FinalFile), []byte(""), 0644)

	issues := CheckLevelIntegrity(home)
	var errs, warns int
	for _, i := range issues {
		if i.Severity == "error" {
			errs++
		} else {
			warns++
		}
	}
	// flag store without accepted table, 99 finalized before 100
	if errs != 2 {
		t.Errorf("expected 2 errors, got %d: %v", errs, issues)
	}
	if warns != 1 {
		t.Errorf("expected 1 warning, got %d: %v", warns, issues)
	}
}

func TestHomeEnvVar(t *testing.T) {
	t.Setenv("MQRDB_HOME", "/custom/path")
	if got := Home(); got != "/custom/path" {
		t.Errorf("Home() = %s, want /custom/path", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LabelPrefix != "MQR" {
		t.Errorf("expected default label prefix MQR, got %s", cfg.LabelPrefix)
	}
	if cfg.Consensus.MaxSpeciesWords != 6 {
		t.Errorf("expected max_species_words 6, got %d", cfg.Consensus.MaxSpeciesWords)
	}
	if cfg.Consensus.RankWindow != 5 {
		t.Errorf("expected rank_window 5, got %d", cfg.Consensus.RankWindow)
	}
	if cfg.Consensus.OutlierMinMembers != 10 {
		t.Errorf("expected outlier_min_members 10, got %d", cfg.Consensus.OutlierMinMembers)
	}
	if cfg.Consensus.OutlierFraction != 0.9 {
		t.Errorf("expected outlier_fraction 0.9, got %v", cfg.Consensus.OutlierFraction)
	}
	if cfg.Review.ExcludeAll {
		t.Error("expected exclude_all false by default")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "mqr_db")
	Init(home, false)

	os.WriteFile(filepath.Join(home, "config.yaml"), []byte("version: \"1\"\nconsensus:\n  rank_window: 3\n"), 0644)

	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Config.Consensus.RankWindow != 3 {
		t.Errorf("expected rank_window 3, got %d", s.Config.Consensus.RankWindow)
	}
	if s.Config.Consensus.MaxSpeciesWords != 6 {
		t.Errorf("expected default max_species_words 6, got %d", s.Config.Consensus.MaxSpeciesWords)
	}
	if s.Config.LabelPrefix != "MQR" {
		t.Errorf("expected default label prefix, got %s", s.Config.LabelPrefix)
	}
}

func TestSetConfigValue(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "mqr_db")
	Init(home, false)
	s, _ := Load(home)

	if err := s.SetConfigValue("consensus.outlier_fraction", "0.85"); err != nil {
		t.Fatalf("SetConfigValue: %v", err)
	}
	if err := s.SetConfigValue("consensus.outlier_fraction", "1.5"); err == nil {
		t.Error("expected error for fraction above 1")
	}
	if err := s.SetConfigValue("consensus.rank_window", "zero"); err == nil {
		t.Error("expected error for non-numeric rank window")
	}
	for _, kv := range [][2]string{
		{"consensus.outlier_fraction", "0"},
		{"consensus.outlier_fraction", "-0.5"},
		{"consensus.rank_window", "0"},
		{"consensus.max_species_words", "-1"},
		{"consensus.outlier_min_members", "0"},
		{"review.exclude_all", "maybe"},
	} {
		if err := s.SetConfigValue(kv[0], kv[1]); err == nil {
			t.Errorf("expected error for %s=%s", kv[0], kv[1])
		}
	}
	if err := s.SetConfigValue("review.exclude_all", "TRUE"); err != nil {
		t.Errorf("SetConfigValue(review.exclude_all, TRUE): %v", err)
	}
	if err := s.SetConfigValue("nope", "1"); err == nil {
		t.Error("expected error for unknown key")
	}

	reloaded, _ := Load(home)
	if reloaded.Config.Consensus.OutlierFraction != 0.85 {
		t.Errorf("expected persisted fraction 0.85, got %v", reloaded.Config.Consensus.OutlierFraction)
	}
	if !reloaded.Config.Review.ExcludeAll {
		t.Error("expected persisted review.exclude_all")
	}
}

func TestLoadRejectsNonPositiveThresholds(t *testing.T) {
	cases := []string{
		"consensus:\n  outlier_fraction: 0\n",
		"consensus:\n  rank_window: -2\n",
		"consensus:\n  outlier_fraction: 1.5\n",
		"label_prefix: \"\"\n",
	}
	for _, cfg := range cases {
		home := t.TempDir()
		if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(cfg), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(home); err == nil {
			t.Errorf("Load accepted %q", cfg)
		}
	}
}

func TestPreviousAndFollowingLevel(t *testing.T) {
	if _, ok := PreviousLevel(100); ok {
		t.Error("100 should have no previous level")
	}
	if p, ok := PreviousLevel(85); !ok || p != 90 {
		t.Errorf("PreviousLevel(85) = %d, %v; want 90, true", p, ok)
	}
	if n, ok := FollowingLevel(90); !ok || n != 85 {
		t.Errorf("FollowingLevel(90) = %d, %v; want 85, true", n, ok)
	}
	if _, ok := FollowingLevel(50); ok {
		t.Error("50 should have no following level")
	}
	if _, ok := PreviousLevel(42); ok {
		t.Error("42 is not a level")
	}
}
