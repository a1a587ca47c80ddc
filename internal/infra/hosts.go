package infra

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

const (
	// DefaultStartMarker opens the engine-managed block in the hosts file.
	DefaultStartMarker = "# deepwork block start"
	// DefaultEndMarker closes the engine-managed block in the hosts file.
	DefaultEndMarker = "# deepwork block end"

	// noEOLNote is written inside a block appended to a file whose last
	// line had no terminator, so Unblock can restore the exact bytes.
	noEOLNote = "# deepwork: file had no trailing newline"
)

// HostsConfig configures HostsBlockStore.
type HostsConfig struct {
	Path            string
	StartMarker     string
	EndMarker       string
	RedirectAddress string // Defaults to 127.0.0.1
}

// HostsBlockStore implements domain.HostsStore on a line-oriented hosts file.
// No file locking is applied: a concurrent external writer can lose an update.
type HostsBlockStore struct {
	config HostsConfig
	fs     domain.FileSystemManager
	logger *zap.Logger
}

// NewHostsBlockStore creates a hosts store. Empty config fields take defaults.
func NewHostsBlockStore(config HostsConfig, fs domain.FileSystemManager, logger *zap.Logger) *HostsBlockStore {
	if config.StartMarker == "" {
		config.StartMarker = DefaultStartMarker
	}
	if config.EndMarker == "" {
		config.EndMarker = DefaultEndMarker
	}
	if config.RedirectAddress == "" {
		config.RedirectAddress = domain.DefaultRedirectAddress
	}
	return &HostsBlockStore{
		config: config,
		fs:     fs,
		logger: logger,
	}
}

// Path returns the hosts file location.
func (s *HostsBlockStore) Path() string {
	return s.config.Path
}

// Block appends a block with one redirect line per domain.
// Existing engine blocks are removed first, so calling Block twice replaces
// rather than nests. A dangling start marker is removed together with the
// redirect lines directly under it.
func (s *HostsBlockStore) Block(domains []string) error {
	entries, err := normalizeDomains(domains)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	lines, err := s.read()
	if err != nil {
		return err
	}

	res := scanBlocks(lines, s.config.StartMarker, s.config.EndMarker)
	if len(res.spans) > 0 || res.dangling >= 0 {
		s.logger.Info("replacing existing hosts block",
			zap.String("path", s.config.Path),
			zap.Int("blocks", len(res.spans)))
		lines = s.strip(lines, res.spans, s.danglingRun(lines, res.dangling)...)
	}

	eol := detectEOL(lines)
	noEOL := false
	if n := len(lines); n > 0 && lines[n-1].eol == "" {
		lines[n-1].eol = eol
		noEOL = true
	}

	lines = append(lines, hostsLine{text: s.config.StartMarker, eol: eol})
	if noEOL {
		lines = append(lines, hostsLine{text: noEOLNote, eol: eol})
	}
	for _, d := range entries {
		lines = append(lines, hostsLine{text: s.config.RedirectAddress + " " + d, eol: eol})
	}
	lines = append(lines, hostsLine{text: s.config.EndMarker, eol: eol})

	if err := s.write(lines); err != nil {
		return err
	}

	s.logger.Info("blocked websites",
		zap.String("path", s.config.Path),
		zap.Strings("domains", entries))
	return nil
}

// Unblock removes the first engine block, including its end marker's newline.
// A missing or malformed block is not an error and leaves the file untouched.
func (s *HostsBlockStore) Unblock() error {
	lines, err := s.read()
	if err != nil {
		return err
	}

	res := scanBlocks(lines, s.config.StartMarker, s.config.EndMarker)
	if res.problem != "" {
		s.logger.Warn("malformed hosts block",
			zap.Error(s.parseError(res)))
	}
	if len(res.spans) == 0 {
		s.logger.Debug("no hosts block to remove", zap.String("path", s.config.Path))
		return nil
	}

	if err := s.write(s.strip(lines, res.spans[:1])); err != nil {
		return err
	}

	s.logger.Info("unblocked websites", zap.String("path", s.config.Path))
	return nil
}

// ListBlocked returns every domain redirected inside the block, in file order.
// Unreadable files and missing blocks yield an empty slice.
func (s *HostsBlockStore) ListBlocked() []string {
	result := make([]string, 0)

	lines, err := s.read()
	if err != nil {
		s.logger.Debug("cannot read hosts file", zap.Error(err))
		return result
	}

	res := scanBlocks(lines, s.config.StartMarker, s.config.EndMarker)
	if len(res.spans) == 0 {
		return result
	}

	span := res.spans[0]
	for _, l := range lines[span.start+1 : span.end] {
		fields := strings.Fields(l.text)
		if len(fields) < 2 || fields[0] != s.config.RedirectAddress {
			continue
		}
		for _, host := range fields[1:] {
			if strings.HasPrefix(host, "#") {
				break
			}
			result = append(result, host)
		}
	}
	return result
}

// strip removes spans and extra lines. When a removed block carried the
// no-newline note and nothing after it survives, the preceding line loses
// its terminator again.
func (s *HostsBlockStore) strip(lines []hostsLine, spans []blockSpan, extra ...int) []hostsLine {
	drop := dropSet(spans, extra)
	last := -1
	for i := range lines {
		if !drop[i] {
			last = i
		}
	}

	kept := removeSpans(lines, spans, extra...)
	for _, span := range spans {
		if last >= 0 && last < span.start && spanHasLine(lines, span, noEOLNote) {
			kept[len(kept)-1].eol = ""
			break
		}
	}
	return kept
}

// danglingRun returns the index of a dangling start marker followed by the
// indexes of the redirect lines directly under it. Those lines were written
// by Block and would otherwise be stranded outside any block.
func (s *HostsBlockStore) danglingRun(lines []hostsLine, start int) []int {
	if start < 0 {
		return nil
	}
	run := []int{start}
	for i := start + 1; i < len(lines); i++ {
		fields := strings.Fields(lines[i].text)
		if strings.TrimSpace(lines[i].text) == noEOLNote {
			run = append(run, i)
			continue
		}
		if len(fields) < 2 || fields[0] != s.config.RedirectAddress {
			break
		}
		run = append(run, i)
	}
	return run
}

func (s *HostsBlockStore) read() ([]hostsLine, error) {
	data, err := s.fs.ReadFile(s.config.Path)
	if err != nil {
		return nil, &domain.FileAccessError{Op: "read", Path: s.config.Path, Err: err}
	}
	return splitLines(string(data)), nil
}

func (s *HostsBlockStore) write(lines []hostsLine) error {
	if err := s.fs.WriteFile(s.config.Path, []byte(joinLines(lines))); err != nil {
		return &domain.FileAccessError{Op: "write", Path: s.config.Path, Err: err}
	}
	return nil
}

func (s *HostsBlockStore) parseError(res scanResult) *domain.ParseError {
	return &domain.ParseError{
		Path:   s.config.Path,
		Line:   res.problemLine,
		Reason: res.problem,
	}
}

// normalizeDomains trims, lowercases and de-duplicates domains, keeping
// first-seen order. Whitespace or '#' inside a domain would corrupt the file.
func normalizeDomains(domains []string) ([]string, error) {
	seen := make(map[string]bool, len(domains))
	result := make([]string, 0, len(domains))

	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if strings.ContainsAny(d, " \t\r\n#") {
			return nil, fmt.Errorf("%w: domain %q", domain.ErrInvalidInput, d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		result = append(result, d)
	}
	return result, nil
}

// Ensure HostsBlockStore implements domain.HostsStore.
var _ domain.HostsStore = (*HostsBlockStore)(nil)
