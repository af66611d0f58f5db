package summary

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"genrep/internal/gentool"
	"genrep/internal/replay"
)

// FramesPerSecond is the fixed simulation rate.
const FramesPerSecond = 30

// Known good checksums of the 1.04 executable and ini data.
const (
	ExeCRC104 = 3660270360
	IniCRC104 = 4272612339
)

// FramesToDuration renders a frame count the way the replay browser shows
// it: "05s 12f", "03m 05s 12f", "01:03:05.12" or with a leading day field.
// A nil count renders empty.
func FramesToDuration(frames *int) string {
	if frames == nil {
		return ""
	}
	n := *frames
	if n < 0 {
		n = 0
	}
	sub := n % FramesPerSecond
	total := n / FramesPerSecond
	days, total := total/86400, total%86400
	hours, total := total/3600, total%3600
	minutes, secs := total/60, total%60

	switch {
	case days > 0:
		return fmt.Sprintf("%02d:%02d:%02d:%02d.%02d", days, hours, minutes, secs, sub)
	case hours > 0:
		return fmt.Sprintf("%02d:%02d:%02d.%02d", hours, minutes, secs, sub)
	case minutes > 0:
		return fmt.Sprintf("%02dm %02ds %02df", minutes, secs, sub)
	}
	return fmt.Sprintf("%02ds %02df", secs, sub)
}

// Ordinal renders a placement as "1st", "2nd", "11th". Zero renders empty.
func Ordinal(n int) string {
	if n == 0 {
		return ""
	}
	suffix := "th"
	if m := n % 100; m < 10 || m > 20 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// FormatCash shortens a start cash value to the nearest ten with a k, M or
// B suffix. "Unknown" and malformed values render empty.
func FormatCash(v string) string {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return ""
	}
	rounded := math.RoundToEven(n/10) * 10

	short := func(div float64, unit string) string {
		s := strconv.FormatFloat(rounded/div, 'f', 1, 64)
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		return s + unit
	}
	switch {
	case rounded >= 1e9:
		return short(1e9, "B")
	case rounded >= 1e6:
		return short(1e6, "M")
	case rounded >= 1e3:
		return short(1e3, "k")
	}
	return strconv.Itoa(int(rounded))
}

type ipRange struct {
	lo, hi uint32
	mode   string
}

var lanRanges = []ipRange{
	{0x1A000000, 0x1AFFFFFF, "LAN (Radmin)"},
	{0x19000000, 0x19FFFFFF, "LAN (Hamachi)"},
	{0xC0A80000, 0xC0A8FFFF, "LAN"},
	{0x0A000000, 0x0AFFFFFF, "LAN"},
	{0xAC100000, 0xAC1FFFFF, "LAN"},
	{0xA9FE0000, 0xA9FEFFFF, "LAN"},
	{0x07000000, 0x07FFFFFF, "LAN"},
}

// MatchMode classifies how the match was hosted from the host's hex IP and
// port. Port 8088 is GameRanger unless the address is in a LAN or VPN range.
func MatchMode(hexIP, port string) string {
	if hexIP == "" {
		hexIP = "0"
	}
	ip, err := strconv.ParseUint(hexIP, 16, 32)
	if err != nil {
		return "Invalid IP"
	}
	if port == "8088" {
		for _, r := range lanRanges {
			if uint32(ip) >= r.lo && uint32(ip) <= r.hi {
				return r.mode
			}
		}
		return "GameRanger"
	}
	if ip == 0 && (port == "0" || port == "") {
		return "Skirmish Mode"
	}
	return "Online"
}

// TimezoneOffset compares the recording machine's local clock with the UTC
// start timestamp and renders the difference as "UTC+2" or "UTC-3:30".
func TimezoneOffset(h *replay.Header) string {
	d := h.SystemTime.Time().Sub(h.Begin())
	minutes := int(math.Floor(d.Minutes()))
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	if minutes%60 == 0 {
		return fmt.Sprintf("UTC%s%d", sign, minutes/60)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, minutes/60, minutes%60)
}

// RenameFFA turns symmetric matches of more than two teams into "ffa4" for
// single players or "t2ffa3" for pairs. Other match types pass through.
func RenameFFA(matchType string) string {
	teams := strings.Split(matchType, "v")
	if len(teams) <= 2 {
		return matchType
	}
	for _, size := range []string{"1", "2"} {
		same := true
		for _, t := range teams {
			if t != size {
				same = false
				break
			}
		}
		if !same {
			continue
		}
		if size == "1" {
			return fmt.Sprintf("ffa%d", len(teams))
		}
		return fmt.Sprintf("t2ffa%d", len(teams))
	}
	return matchType
}

// UploadDate extracts the archive day from a remote replay URL.
func UploadDate(url string) (time.Time, bool) {
	return gentool.DateFromURL(url)
}

// trustReplayDate reports whether the recorded start date can stand next to
// the upload date. Archives file replays one or two days after they were
// played; anything else means the recording clock was wrong.
func trustReplayDate(played, uploaded time.Time) bool {
	day := played.UTC().Truncate(24 * time.Hour)
	return day.Equal(uploaded.AddDate(0, 0, -1)) || day.Equal(uploaded.AddDate(0, 0, -2))
}

// MatchDate is the date used in match ids: the replay's UTC start date, or
// the upload date when that is known and the start date is implausible.
func MatchDate(h *replay.Header, sourceURL string) time.Time {
	played := h.Begin()
	if uploaded, ok := UploadDate(sourceURL); ok && !trustReplayDate(played, uploaded) {
		return uploaded
	}
	return played.Truncate(24 * time.Hour)
}

// MatchID hashes the facts every copy of the same match shares, so replays
// uploaded by different players of one game map to the same id.
func MatchID(date time.Time, seed int64, matchType, mapCRC string, nicks []string) string {
	key := date.Format("20060102") + strconv.FormatInt(seed, 10) + matchType + mapCRC + strings.Join(nicks, "")
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MatchTimes returns the start and end of a match as "2006-01-02 15:04:05"
// and the match day. When the replay came from the archive and its clock
// disagrees with the upload day, the day and start time are taken from the
// upload directory and the archived file name ("15-04-05...").
func MatchTimes(h *replay.Header, sourceURL string) (start, end, day string) {
	const layout = "2006-01-02 15:04:05"
	begin, finish := h.Begin(), h.End()
	start, end, day = begin.Format(layout), finish.Format(layout), begin.Format("2006-01-02")

	uploaded, ok := UploadDate(sourceURL)
	if !ok {
		return start, end, day
	}
	day = uploaded.Format("2006-01-02")
	if trustReplayDate(begin, uploaded) {
		return start, end, day
	}

	name := sourceURL[strings.LastIndex(sourceURL, "/")+1:]
	if len(name) < 8 {
		return start, end, day
	}
	clock := strings.ReplaceAll(name[:8], "-", ":")
	t, err := time.Parse(layout, day+" "+clock)
	if err != nil {
		return start, end, day
	}
	return t.Format(layout), t.Add(finish.Sub(begin)).Format(layout), day
}

var invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFileName replaces characters Windows forbids in file names and
// trims surrounding spaces and dots.
func SanitizeFileName(name string) string {
	return strings.Trim(invalidFileChars.ReplaceAllString(name, "_"), " .")
}
