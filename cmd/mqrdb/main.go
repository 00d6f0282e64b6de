package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/metaxaqr/mqrdb/internal/cluster"
	"github.com/metaxaqr/mqrdb/internal/consensus"
	"github.com/metaxaqr/mqrdb/internal/dbstats"
	"github.com/metaxaqr/mqrdb/internal/flagstore"
	"github.com/metaxaqr/mqrdb/internal/merge"
	"github.com/metaxaqr/mqrdb/internal/review"
	"github.com/metaxaqr/mqrdb/internal/store"
	"github.com/metaxaqr/mqrdb/internal/ui"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// homeFlag overrides MQRDB_HOME when set.
var homeFlag string

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

func main() {
	var noColor, quiet, verbose bool

	rootCmd := &cobra.Command{
		Use:   "mqrdb",
		Short: "mqrdb: taxonomy consensus and curation for clustered reference sequences",
		Long: "Derives one representative taxonomy per sequence cluster, flags clusters that need " +
			"a human decision, runs the operator review, and merges the corrections into the final " +
			"per-level table, one identity level at a time.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor)
			ui.SetVerbosity(quiet, verbose)
		},
	}

	rootCmd.Version = buildVersion()
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "Project home (default $MQRDB_HOME or ./mqr_db)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	for _, c := range []*cobra.Command{initCmd(), prepareCmd(), reviewCmd(), mergeCmd(), rekeyCmd()} {
		c.GroupID = "pipeline"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{levelsCmd(), statsCmd(), doctorCmd()} {
		c.GroupID = "inspect"
		rootCmd.AddCommand(c)
	}
	configC := configCmd()
	configC.GroupID = "config"
	rootCmd.AddCommand(configC)
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(completionCmd())

	if err := rootCmd.Execute(); err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

func home() string {
	if homeFlag != "" {
		return homeFlag
	}
	return store.Home()
}

func loadStore() (*store.Store, error) {
	s, err := store.Load(home())
	if err != nil {
		return nil, fmt.Errorf("project not initialized, run 'mqrdb init' first: %w", err)
	}
	return s, nil
}

func parseLevel(arg string) (int, error) {
	identity, err := strconv.Atoi(strings.TrimSuffix(arg, "%"))
	if err != nil || !store.ValidLevel(identity) {
		return 0, fmt.Errorf("invalid identity level %q (see 'mqrdb levels')", arg)
	}
	return identity, nil
}

func levelIndex(identity int) int {
	for i, l := range store.Levels() {
		if l == identity {
			return i + 1
		}
	}
	return 0
}

func engineFor(s *store.Store) *consensus.Engine {
	c := s.Config.Consensus
	return consensus.New(consensus.Options{
		MaxSpeciesWords:   c.MaxSpeciesWords,
		RankWindow:        c.RankWindow,
		OutlierMinMembers: c.OutlierMinMembers,
		OutlierFraction:   c.OutlierFraction,
	})
}

// requirePredecessor enforces the level chain: a level may only be worked on
// once the level before it is finalized.
func requirePredecessor(s *store.Store, identity int) error {
	prev, ok := store.PreviousLevel(identity)
	if !ok {
		return nil
	}
	if _, _, err := s.NextLevel(prev); err != nil {
		return fmt.Errorf("level %d must be merged before level %d: %w", prev, identity, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Initialize the project home",
		Long:    "Create the project home (./mqr_db by default) with one directory per identity level and a config.yaml.",
		Example: "  mqrdb init\n  mqrdb init --home /data/mqr_db --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			h := home()
			if err := store.Init(h, force); err != nil {
				return err
			}
			ui.Success("mqrdb initialized")
			ui.Detail("Home:", h)
			ui.Detail("Levels:", fmt.Sprintf("%d (100%% down to 50%%)", len(store.Levels())))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if the project home already exists")
	return cmd
}

func prepareCmd() *cobra.Command {
	var input string
	var force bool
	cmd := &cobra.Command{
		Use:   "prepare <level>",
		Short: "Run the consensus pass over a level's clusters",
		Long: "Reads the level's cluster membership stream (tax_clusters, or --input), resolves a " +
			"representative taxonomy per cluster, and writes the accepted table and the flagged store.",
		Example: "  mqrdb prepare 100\n  mqrdb prepare 100 --input run/tax_clusters",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := parseLevel(args[0])
			if err != nil {
				return err
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := requirePredecessor(s, identity); err != nil {
				return err
			}
			if input == "" {
				input = s.LevelPath(identity, store.MembershipFile)
			}
			accPath := s.LevelPath(identity, store.AcceptedFile)
			flagPath := s.LevelPath(identity, store.FlaggedFile)
			reprepare := exists(accPath) || exists(flagPath)
			if reprepare && !force {
				ok, err := ui.Confirm(fmt.Sprintf("Level %d is already prepared. Overwrite its outputs?", identity))
				if err != nil {
					return err
				}
				if !ok {
					ui.EmptyState("Nothing changed.")
					return nil
				}
			}

			ui.LevelHeader("prepare", identity, levelIndex(identity), len(store.Levels()))
			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open membership stream: %w", err)
			}
			defer f.Close()

			w, err := flagstore.Create(accPath, flagPath)
			if err != nil {
				return err
			}
			start := time.Now()
			spin := ui.NewSpinner(fmt.Sprintf("Resolving clusters at %d%%", identity))
			sum, err := flagstore.Process(
				cluster.NewScanner(f, cluster.WithIdentity(s.Config.LabelPrefix, identity)),
				engineFor(s), w)
			spin.Stop()
			if err != nil {
				return fmt.Errorf("level %d: %w", identity, err)
			}

			if reprepare {
				// Decisions made against the old flagged store no longer apply.
				for _, file := range []string{store.CorrectionFile, store.ExclusionFile, store.ReviewStateFile, store.FinalFile} {
					if err := os.Remove(s.LevelPath(identity, file)); err == nil {
						ui.Logger.Debug("removed stale output", "level", identity, "file", file)
					}
				}
			}

			ui.Logger.Info("consensus pass complete",
				"level", identity, "clusters", sum.Clusters, "flagged", sum.Flagged,
				"elapsed", time.Since(start).Round(time.Millisecond))
			ui.Success(fmt.Sprintf("Level %d prepared", identity))
			ui.KeyValue("Clusters:", strconv.Itoa(sum.Clusters))
			ui.KeyValue("Accepted:", strconv.Itoa(sum.Accepted))
			ui.KeyValue("Flagged: ", strconv.Itoa(sum.Flagged))
			for _, fl := range sum.Tally.Flags() {
				ui.Detail(ui.Flag(string(fl)), strconv.Itoa(sum.Tally.Count(fl)))
			}
			if sum.Flagged > 0 {
				ui.Info(fmt.Sprintf("Next: mqrdb review %d", identity))
			} else {
				ui.Info(fmt.Sprintf("Next: mqrdb merge %d", identity))
			}
			ui.Notify("mqrdb", fmt.Sprintf("Level %d prepared: %d flagged", identity, sum.Flagged))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Membership stream to read instead of the level's tax_clusters")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing outputs without asking")
	return cmd
}

func reviewCmd() *cobra.Command {
	var excludeAll, restart bool
	cmd := &cobra.Command{
		Use:   "review <level>",
		Short: "Review a level's flagged clusters",
		Long: "Presents each flagged cluster and asks for a decision. Decisions are saved as they are " +
			"made, so an interrupted review resumes where it stopped. Type 'help' at the prompt for commands.",
		Example: "  mqrdb review 100\n  mqrdb review 95 --exclude-all\n  mqrdb review 100 --restart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := parseLevel(args[0])
			if err != nil {
				return err
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			flagPath := s.LevelPath(identity, store.FlaggedFile)
			tally, records, err := flagstore.ReadFlagged(flagPath)
			if err != nil {
				return fmt.Errorf("level %d is not prepared (run 'mqrdb prepare %d'): %w", identity, identity, err)
			}

			statePath := s.LevelPath(identity, store.ReviewStateFile)
			sink := review.FileSink{
				CorrectionPath: s.LevelPath(identity, store.CorrectionFile),
				ExclusionPath:  s.LevelPath(identity, store.ExclusionFile),
			}
			if restart {
				ok, err := ui.Confirm(fmt.Sprintf("Discard every review decision for level %d?", identity))
				if err != nil {
					return err
				}
				if !ok {
					ui.EmptyState("Nothing changed.")
					return nil
				}
				for _, p := range []string{statePath, sink.CorrectionPath, sink.ExclusionPath} {
					if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("failed to reset review: %w", err)
					}
				}
			}

			st, err := review.LoadState(statePath)
			if err != nil {
				return err
			}
			if st.Status.Terminal() {
				return fmt.Errorf("review of level %d is %s (use --restart to review again)", identity, st.Status)
			}
			decided, err := review.DecidedLabels(sink.CorrectionPath)
			if err != nil {
				return err
			}

			ui.LevelHeader("review", identity, levelIndex(identity), len(store.Levels()))
			if len(decided) > 0 {
				ui.Info(fmt.Sprintf("Resuming: %d of %d clusters already decided", len(decided), len(records)))
			}
			sess := review.NewSession(review.NewInterpreter(engineFor(s)), terminalView{}, tally, st)
			sess.StatePath = statePath
			sess.Decided = decided
			sess.ExcludeAll = excludeAll || s.Config.Review.ExcludeAll

			sum, err := sess.Run(records, newTerminalInput(os.Stdin), sink)
			if err != nil {
				return err
			}
			ui.Logger.Info("review finished", "level", identity, "status", sess.State().Status,
				"reviewed", sum.Reviewed, "auto", sum.Auto, "excluded", sum.Excluded, "dropped", sum.Dropped)

			fmt.Fprintln(os.Stderr)
			ui.KeyValue("Reviewed:", strconv.Itoa(sum.Reviewed))
			ui.KeyValue("Auto:    ", strconv.Itoa(sum.Auto))
			ui.KeyValue("Excluded:", strconv.Itoa(sum.Excluded))
			switch sess.State().Status {
			case review.StatusCompleted:
				ui.Success(fmt.Sprintf("Review of level %d complete. Next: mqrdb merge %d", identity, identity))
			case review.StatusExited:
				ui.Warning(fmt.Sprintf("Review exited; %d cluster(s) left unreviewed will not be written", sum.Dropped))
			default:
				ui.Info(fmt.Sprintf("Review paused. Run 'mqrdb review %d' to continue", identity))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&excludeAll, "exclude-all", false, "Exclude every flagged cluster without prompting")
	cmd.Flags().BoolVar(&restart, "restart", false, "Discard earlier decisions and review from the start")
	return cmd
}

func mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "merge <level>",
		Short:   "Write a level's final representative table",
		Long:    "Folds the review decisions into the accepted table and writes final_repr. Excluded clusters and clusters never reviewed are left out.",
		Example: "  mqrdb merge 100",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := parseLevel(args[0])
			if err != nil {
				return err
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			in := merge.Inputs{
				Accepted:    s.LevelPath(identity, store.AcceptedFile),
				Flagged:     s.LevelPath(identity, store.FlaggedFile),
				Corrections: s.LevelPath(identity, store.CorrectionFile),
			}
			_, records, err := flagstore.ReadFlagged(in.Flagged)
			if err != nil {
				return fmt.Errorf("level %d is not prepared (run 'mqrdb prepare %d'): %w", identity, identity, err)
			}
			if !exists(in.Corrections) {
				if len(records) > 0 {
					return fmt.Errorf("level %d has %d flagged cluster(s) and no review decisions (run 'mqrdb review %d')", identity, len(records), identity)
				}
				// Nothing was flagged, so there is nothing to review.
				if err := os.WriteFile(in.Corrections, nil, 0644); err != nil {
					return fmt.Errorf("failed to create %s: %w", store.CorrectionFile, err)
				}
			}
			st, err := review.LoadState(s.LevelPath(identity, store.ReviewStateFile))
			if err != nil {
				return err
			}
			if len(records) > 0 && !st.Status.Terminal() {
				ui.Warning(fmt.Sprintf("Review of level %d is not finished; unreviewed clusters will be left out", identity))
			}

			sum, err := merge.MergeFiles(in, s.LevelPath(identity, store.FinalFile))
			if err != nil {
				return fmt.Errorf("merge level %d: %w", identity, err)
			}
			ui.Logger.Info("merge complete", "level", identity, "written", sum.Written, "excluded", sum.Excluded)
			ui.Success(fmt.Sprintf("Level %d merged: %d clusters written", identity, sum.Written))
			ui.Detail("Corrected:", strconv.Itoa(sum.Corrected))
			ui.Detail("Excluded:", strconv.Itoa(sum.Excluded))
			if sum.Unreached > 0 {
				ui.Warning(fmt.Sprintf("%d flagged cluster(s) were never reviewed and are not in the final table", sum.Unreached))
			}
			if sum.Unknown > 0 {
				ui.Warning(fmt.Sprintf("%d correction(s) named unknown clusters and were ignored", sum.Unknown))
			}
			if next, ok, err := s.NextLevel(identity); err == nil && ok {
				ui.Info(fmt.Sprintf("Next level: %d%% (recluster, then 'mqrdb rekey %d --input <loop stream>')", next, next))
			}
			return nil
		},
	}
}

func rekeyCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "rekey <level>",
		Short: "Build a level's membership stream from a reclustering run",
		Long: "Reads a loop-format membership stream, where each member line carries the label of the " +
			"previous level's cluster it stands for, and writes the level's tax_clusters with every " +
			"member carrying that cluster's final representative taxonomy.",
		Example: "  mqrdb rekey 99 --input run/99/loop_clusters",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := parseLevel(args[0])
			if err != nil {
				return err
			}
			prev, ok := store.PreviousLevel(identity)
			if !ok {
				return fmt.Errorf("level %d is the first level and has nothing to rekey from", identity)
			}
			if input == "" {
				return fmt.Errorf("--input is required")
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := requirePredecessor(s, identity); err != nil {
				return err
			}

			rows, err := flagstore.ReadAccepted(s.LevelPath(prev, store.FinalFile))
			if err != nil {
				return err
			}
			reprs := make(map[string]string, len(rows))
			for _, r := range rows {
				reprs[r.Label] = r.Taxonomy
			}

			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open loop stream: %w", err)
			}
			defer f.Close()
			clusters, err := cluster.Parse(f, cluster.WithLoopFormat(), cluster.WithIdentity(s.Config.LabelPrefix, identity))
			if err != nil {
				return err
			}
			rekeyed, dropped := cluster.Rekey(clusters, reprs)
			if err := writeMembership(s.LevelPath(identity, store.MembershipFile), rekeyed); err != nil {
				return err
			}

			ui.Logger.Info("rekeyed level", "level", identity, "from", prev, "clusters", len(rekeyed), "dropped_lineages", len(dropped))
			ui.Success(fmt.Sprintf("Level %d: %d clusters rekeyed from level %d", identity, len(rekeyed), prev))
			if len(dropped) > 0 {
				ui.Warning(fmt.Sprintf("%d lineage label(s) had no final representative (excluded or unreviewed) and were dropped", len(dropped)))
				for _, l := range dropped {
					ui.Logger.Debug("dropped lineage", "label", l)
				}
			}
			ui.Info(fmt.Sprintf("Next: mqrdb prepare %d", identity))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Loop-format membership stream")
	return cmd
}

func levelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "Show the identity level chain and each level's progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			var rows [][]string
			for i, l := range store.Levels() {
				rows = append(rows, []string{strconv.Itoa(i + 1), fmt.Sprintf("%d%%", l), levelStatus(s, l)})
			}
			ui.Table([]string{"#", "IDENTITY", "STATUS"}, rows)
			return nil
		},
	}
}

func levelStatus(s *store.Store, identity int) string {
	has := func(file string) bool { return exists(s.LevelPath(identity, file)) }
	switch {
	case has(store.FinalFile):
		return ui.Green("final")
	case has(store.CorrectionFile):
		st, err := review.LoadState(s.LevelPath(identity, store.ReviewStateFile))
		if err == nil && st.Status.Terminal() {
			return "reviewed (" + string(st.Status) + ")"
		}
		return ui.Yellow("reviewing")
	case has(store.FlaggedFile):
		return "prepared"
	case has(store.MembershipFile):
		return "clustered"
	}
	return ui.Dim("empty")
}

func statsCmd() *cobra.Command {
	var conflicts bool
	cmd := &cobra.Command{
		Use:     "stats <fasta-or-table>",
		Short:   "Report genera that map onto more than one lineage",
		Long:    "Counts entries, entries without a genus, and duplicate entries whose genus disagrees with that genus's most common higher-rank lineage. Reads FASTA headers or label<TAB>taxonomy tables.",
		Example: "  mqrdb stats mqr_db/100/final_repr\n  mqrdb stats db.fasta --conflicts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := dbstats.Duplicates(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			ui.Table(
				[]string{"TOTAL ENTRIES", "NO GENUS", "TOTAL GENUS", "TOTAL DUPLICATES"},
				[][]string{{strconv.Itoa(st.Total), strconv.Itoa(st.NoGenus), strconv.Itoa(st.WithGenus), strconv.Itoa(st.Duplicates)}},
			)
			if !conflicts {
				return nil
			}
			if len(st.Conflicts) == 0 {
				ui.EmptyState("No conflicting genera.")
				return nil
			}
			var rows [][]string
			for _, c := range st.Conflicts {
				var parts []string
				for _, l := range c.Lineages {
					parts = append(parts, fmt.Sprintf("%s: %d", l.Path, l.Count))
				}
				rows = append(rows, []string{c.Genus, strings.Join(parts, ", ")})
			}
			fmt.Println()
			ui.Table([]string{"GENUS", "LINEAGES"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&conflicts, "conflicts", false, "List each conflicting genus and its lineages")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit mqrdb configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(s.Config)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Valid keys: label_prefix, consensus.max_species_words, consensus.rank_window, consensus.outlier_min_members, consensus.outlier_fraction, review.exclude_all. " +
			"Thresholds must be positive and outlier_fraction at most 1; config.yaml edited by hand is checked the same way when loaded.",
		Example: `  mqrdb config set consensus.outlier_fraction 0.95
  mqrdb config set label_prefix cv_MQR
  mqrdb config set review.exclude_all true`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := s.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the project home and per-level files",
		RunE: func(cmd *cobra.Command, args []string) error {
			h := home()
			if _, err := store.Load(h); err != nil {
				return fmt.Errorf("project not initialized, run 'mqrdb init' first: %w", err)
			}

			if fix {
				ui.CommandBanner("DOCTOR", "repair mode")
				fixed := store.FixIssues(h)
				for _, p := range store.ScratchFiles(h) {
					if err := os.Remove(p); err == nil {
						fixed = append(fixed, fmt.Sprintf("removed leftover scratch file %s", p))
					}
				}
				for _, f := range fixed {
					ui.Success(fmt.Sprintf("[FIXED] %s", f))
				}
				if len(fixed) == 0 {
					ui.EmptyState("Nothing to fix.")
				}
			} else {
				ui.CommandBanner("DOCTOR", "health check")
			}

			issues := store.CheckHealth(h)
			issues = append(issues, store.CheckLevelIntegrity(h)...)
			for _, p := range store.ScratchFiles(h) {
				issues = append(issues, store.Issue{
					Severity: "warning",
					Message:  fmt.Sprintf("leftover scratch file %s (run 'mqrdb doctor --fix' to remove)", p),
				})
			}

			if len(issues) == 0 {
				ui.Success("Everything looks good")
				os.Exit(0)
			}

			hasError := false
			for _, issue := range issues {
				if issue.Severity == "error" {
					ui.Error(fmt.Sprintf("[ERR]  %s", issue.Message))
					hasError = true
				} else {
					ui.Warning(fmt.Sprintf("[WARN] %s", issue.Message))
				}
			}

			if hasError {
				os.Exit(2)
			}
			os.Exit(1)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Repair missing directories and config, and remove leftover scratch files")
	return cmd
}

func resetCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reset <level>",
		Short: "Remove a level's derived files",
		Long:  "Removes everything derived from a level's membership stream (accepted table, flagged store, review decisions, exclusions, final table) so the level can be prepared again. The membership stream is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := parseLevel(args[0])
			if err != nil {
				return err
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			if !dryRun && exists(s.LevelPath(identity, store.FinalFile)) {
				if next, ok := store.FollowingLevel(identity); ok && exists(s.LevelPath(next, store.MembershipFile)) {
					ui.Warning(fmt.Sprintf("Level %d was already rekeyed from this level", next))
				}
			}

			var toRemove []string
			for _, f := range []string{store.AcceptedFile, store.FlaggedFile, store.CorrectionFile,
				store.ExclusionFile, store.ReviewStateFile, store.FinalFile} {
				if p := s.LevelPath(identity, f); exists(p) {
					toRemove = append(toRemove, p)
				}
			}
			if len(toRemove) == 0 {
				ui.EmptyState("Nothing to reset.")
				return nil
			}
			for _, p := range toRemove {
				if dryRun {
					ui.Detail("Would remove:", p)
					continue
				}
				if err := os.Remove(p); err != nil {
					ui.Warning(fmt.Sprintf("Failed to remove %s: %v", p, err))
				} else {
					ui.Success(fmt.Sprintf("Removed %s", p))
				}
			}
			if dryRun {
				ui.Info(fmt.Sprintf("%d file(s) would be removed. Run without --dry-run to proceed.", len(toRemove)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview what would be removed")
	return cmd
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Long:      "Generate shell completion scripts for bash, zsh, or fish. Output the script to stdout for sourcing in your shell profile.",
		Example:   "  mqrdb completion bash > ~/.bashrc.d/mqrdb\n  mqrdb completion zsh > ~/.zfunc/_mqrdb",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", args[0])
			}
		},
	}
}
