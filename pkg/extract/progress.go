package extract

import (
	"regexp"
	"strconv"
)

// Progress is parsed from the periodic status lines of the tool.
type Progress struct {
	Done    int64
	Todo    int64
	Percent int
}

// [STATUS] 123.00 tries/min, 123 tries in 00:01h, 14221 to do in 01:56h, 16 active
var statusLine = regexp.MustCompile(`^\s*\[STATUS\].*?(\d+)\s+tries in [^,]*,\s*(\d+)\s+to do`)

// ParseProgress reports the completion percentage carried by a status line.
func ParseProgress(line string) (Progress, bool) {
	m := statusLine.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	done, err1 := strconv.ParseInt(m[1], 10, 64)
	todo, err2 := strconv.ParseInt(m[2], 10, 64)
	if err1 != nil || err2 != nil {
		return Progress{}, false
	}

	p := Progress{Done: done, Todo: todo}
	if total := done + todo; total > 0 {
		p.Percent = int(done * 100 / total)
	}
	if p.Percent > 100 {
		p.Percent = 100
	}
	return p, true
}
