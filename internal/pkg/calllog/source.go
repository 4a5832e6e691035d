package calllog

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
)

// Call types of the android call log
const (
	TypeIncoming = 1
	TypeOutgoing = 2
	TypeMissed   = 3
)

// Row is a platform call log row
type Row struct {
	ID       int64
	Number   string
	Type     int
	Date     int64 // start, ms epoch
	Duration int64 // seconds
}

// Runner executes a command and returns combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Source reads android call log with the `content` tool
type Source struct {
	run        Runner
	lineNumber string
}

// NewSource creates call log source. If lineNumber is empty it is read from the SIM info
func NewSource(lineNumber string) *Source {
	return &Source{run: execRunner, lineNumber: strings.TrimSpace(lineNumber)}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Rows returns call log rows started after since (ms), oldest first
func (s *Source) Rows(ctx context.Context, since int64) ([]*Row, error) {
	defer goapp.Estimate("call log query")()
	out, err := s.run(ctx, "content", "query", "--uri", "content://call_log/calls",
		"--projection", "_id:number:type:date:duration",
		"--where", fmt.Sprintf("date>%d", since),
		"--sort", "date ASC")
	if denied(out) {
		return nil, utils.NewErrPermissionDenied(utils.PermissionCallLog, fmt.Errorf("%s", firstLine(out)))
	}
	if err != nil {
		return nil, fmt.Errorf("can't query call log: %w: %s", err, firstLine(out))
	}
	return parseRows(string(out))
}

// LineNumber returns the local line number
func (s *Source) LineNumber(ctx context.Context) (string, error) {
	if s.lineNumber != "" {
		return s.lineNumber, nil
	}
	out, err := s.run(ctx, "content", "query", "--uri", "content://telephony/siminfo", "--projection", "number")
	if denied(out) {
		return "", utils.NewErrPermissionDenied(utils.PermissionPhoneState, fmt.Errorf("%s", firstLine(out)))
	}
	if err != nil {
		return "", fmt.Errorf("can't query sim info: %w: %s", err, firstLine(out))
	}
	for _, r := range parseLines(string(out)) {
		if n := strings.TrimSpace(r["number"]); n != "" && n != "NULL" {
			return n, nil
		}
	}
	goapp.Log.Warn().Msg("no line number")
	return "", nil
}

func parseRows(out string) ([]*Row, error) {
	res := []*Row{}
	for _, r := range parseLines(out) {
		row, err := toRow(r)
		if err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, nil
}

func toRow(m map[string]string) (*Row, error) {
	var err error
	res := &Row{Number: m["number"]}
	if res.Number == "NULL" {
		res.Number = ""
	}
	if res.ID, err = strconv.ParseInt(m["_id"], 10, 64); err != nil {
		return nil, fmt.Errorf("wrong _id '%s': %w", m["_id"], err)
	}
	if res.Type, err = strconv.Atoi(m["type"]); err != nil {
		return nil, fmt.Errorf("wrong type '%s': %w", m["type"], err)
	}
	if res.Date, err = strconv.ParseInt(m["date"], 10, 64); err != nil {
		return nil, fmt.Errorf("wrong date '%s': %w", m["date"], err)
	}
	if res.Duration, err = strconv.ParseInt(m["duration"], 10, 64); err != nil {
		return nil, fmt.Errorf("wrong duration '%s': %w", m["duration"], err)
	}
	return res, nil
}

// parseLines parses `Row: 0 k1=v1, k2=v2` lines
func parseLines(out string) []map[string]string {
	res := []map[string]string{}
	for _, l := range strings.Split(out, "\n") {
		l = strings.TrimSpace(l)
		if !strings.HasPrefix(l, "Row:") {
			continue
		}
		l = strings.TrimSpace(strings.TrimPrefix(l, "Row:"))
		if i := strings.Index(l, " "); i > 0 {
			l = l[i+1:]
		} else {
			continue
		}
		m := map[string]string{}
		last := ""
		for _, p := range strings.Split(l, ", ") {
			k, v, ok := strings.Cut(p, "=")
			if ok && isKey(k) {
				m[k] = v
				last = k
			} else if last != "" {
				m[last] += ", " + p
			}
		}
		res = append(res, m)
	}
	return res
}

func isKey(k string) bool {
	if k == "" {
		return false
	}
	for _, r := range k {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func denied(out []byte) bool {
	s := string(out)
	return strings.Contains(s, "Permission Denial") || strings.Contains(s, "SecurityException")
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[:i]
	}
	return goapp.Sanitize(s)
}
