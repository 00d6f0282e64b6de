package ui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Logger is the package-level structured logger. It is usable before Init
// so library code and tests can log without setup.
var Logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

const brand = "M Q R · D B"

type palette struct {
	header  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
	bold    lipgloss.Style
	prompt  lipgloss.Style
	accent  lipgloss.Style
	flag    lipgloss.Style
	border  lipgloss.Color
}

var styles = newPalette()

func newPalette() palette {
	return palette{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		failure: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		dim:     lipgloss.NewStyle().Faint(true),
		bold:    lipgloss.NewStyle().Bold(true),
		prompt:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		flag:    lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		border:  lipgloss.Color("63"),
	}
}

// Init picks the color profile and rebuilds styles and the logger.
// Call this once at CLI startup.
func Init(noColorFlag bool) {
	noColor := noColorFlag || os.Getenv("NO_COLOR") != ""

	sanitizeTerminal()

	// Pre-set dark background to prevent termenv OSC query that leaks ^[[I focus events
	lipgloss.SetHasDarkBackground(true)

	profile := termenv.EnvColorProfile()
	if noColor {
		profile = termenv.Ascii
	}
	lipgloss.SetColorProfile(profile)
	styles = newPalette()

	level := Logger.GetLevel()
	Logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false, Level: level})
	if noColor {
		Logger.SetStyles(log.DefaultStyles())
	}
}

// SetVerbosity adjusts the logger level: quiet shows warnings and errors
// only, verbose adds debug output. Quiet wins when both are set.
func SetVerbosity(quiet, verbose bool) {
	switch {
	case quiet:
		Logger.SetLevel(log.WarnLevel)
	case verbose:
		Logger.SetLevel(log.DebugLevel)
	default:
		Logger.SetLevel(log.InfoLevel)
	}
}

// sanitizeTerminal undoes raw mode left behind by an earlier process, where
// \n no longer returns the cursor to column 0. Only a terminal stdin is touched.
func sanitizeTerminal() {
	if fi, err := os.Stdin.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return
	}
	stty := exec.Command("stty", "sane")
	stty.Stdin = os.Stdin
	_ = stty.Run()
	fmt.Fprint(os.Stderr, "\033[0m\r")
}

func Dim(s string) string    { return styles.dim.Render(s) }
func Green(s string) string  { return styles.success.Render(s) }
func Yellow(s string) string { return styles.warning.Render(s) }
func Flag(s string) string   { return styles.flag.Render(s) }

// Prompt renders the styled prompt text shown before operator input.
func Prompt(s string) string { return styles.prompt.Render(s) }

func mark(style lipgloss.Style, glyph, msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", style.Render(glyph), msg)
}

func Success(msg string) { mark(styles.success, "✓", msg) }
func Warning(msg string) { mark(styles.warning, "⚠", msg) }
func Error(msg string)   { mark(styles.failure, "✗", msg) }
func Info(msg string)    { mark(styles.accent, "▸", msg) }

// Detail prints an indented, dimmed key followed by its value.
func Detail(key, value string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", styles.dim.Render("  "+key), value)
}

// KeyValue prints a bold key with a value, for summary blocks.
func KeyValue(key, value string) {
	fmt.Fprintf(os.Stderr, "  %s  %s\n", styles.bold.Render(key), value)
}

// EmptyState prints a dimmed note for empty results.
func EmptyState(msg string) {
	fmt.Fprintf(os.Stderr, "  %s\n", styles.dim.Render(msg))
}

// Table prints rows under bold headers, aligned in columns on stdout.
func Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, styles.bold.Render(strings.Join(headers, "\t")))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	tw.Flush()
}

func box(border lipgloss.Border, lines ...string) string {
	return lipgloss.NewStyle().
		BorderStyle(border).
		BorderForeground(styles.border).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

// LevelHeader announces a pipeline stage for one identity level and where
// that level sits in the chain.
func LevelHeader(stage string, identity, index, total int) {
	fmt.Fprint(os.Stderr, "\r\n")
	fmt.Fprintln(os.Stderr, box(lipgloss.DoubleBorder(),
		styles.header.Render(brand),
		styles.accent.Render(fmt.Sprintf("─── %s · level %d of %d ───", strings.ToUpper(stage), index, total)),
		styles.dim.Render(fmt.Sprintf("identity %d%%", identity)),
	))
	fmt.Fprintln(os.Stderr)
}

// CommandBanner announces a command that is not tied to a level.
func CommandBanner(command, subtitle string) {
	lines := []string{
		styles.header.Render(brand),
		styles.accent.Render(fmt.Sprintf("─── %s ───", strings.ToUpper(command))),
	}
	if subtitle != "" {
		lines = append(lines, styles.dim.Render(subtitle))
	}
	fmt.Fprint(os.Stderr, "\r\n")
	fmt.Fprintln(os.Stderr, box(lipgloss.RoundedBorder(), lines...))
	fmt.Fprintln(os.Stderr)
}

// Panel frames one cluster under review: a bold title over its lines.
func Panel(title string, lines []string) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, box(lipgloss.RoundedBorder(), append([]string{styles.bold.Render(title)}, lines...)...))
}

// confirmModel asks one yes/no question. The answer starts on "no" so an
// accidental enter never destroys anything.
type confirmModel struct {
	question string
	yes      bool
	answered bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.yes, m.answered = true, true
	case "n", "N", "esc", "ctrl+c":
		m.yes, m.answered = false, true
	case "tab", "left", "right", "h", "l":
		m.yes = !m.yes
	case "enter":
		m.answered = true
	}
	if m.answered {
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	yes, no := styles.dim.Render("  yes "), styles.failure.Render("[ no ]")
	if m.yes {
		yes, no = styles.success.Render("[ yes ]"), styles.dim.Render("  no ")
	}
	return fmt.Sprintf("%s  %s %s\n%s",
		styles.prompt.Render(m.question), yes, no,
		styles.dim.Render("  y/n to answer, tab to switch, enter to confirm"))
}

// Confirm asks a yes/no question on the terminal.
func Confirm(question string) (bool, error) {
	final, err := tea.NewProgram(confirmModel{question: question}, tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return false, err
	}
	fmt.Fprintln(os.Stderr)
	return final.(confirmModel).yes, nil
}

// Spinner animates a message on stderr with the time spent so far.
// Stop may be called more than once.
type Spinner struct {
	msg   string
	start time.Time
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

var spinFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner starts a spinner with the given message.
func NewSpinner(msg string) *Spinner {
	s := &Spinner{msg: msg, start: time.Now(), quit: make(chan struct{})}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Spinner) draw(frame int) {
	elapsed := time.Since(s.start).Truncate(time.Second)
	fmt.Fprintf(os.Stderr, "\r%s %s %s",
		styles.accent.Render(spinFrames[frame%len(spinFrames)]),
		styles.dim.Render(s.msg),
		styles.dim.Render(elapsed.String()))
}

func (s *Spinner) loop() {
	defer s.wg.Done()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for frame := 0; ; frame++ {
		s.draw(frame)
		select {
		case <-s.quit:
			fmt.Fprint(os.Stderr, "\r\033[K")
			return
		case <-tick.C:
		}
	}
}

// Stop halts the spinner and clears its line.
func (s *Spinner) Stop() {
	s.once.Do(func() { close(s.quit) })
	s.wg.Wait()
}
