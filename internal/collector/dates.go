package collector

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultRecencyWindow 只保留最近 24 小时内的新闻
const DefaultRecencyWindow = 24 * time.Hour

// DateParseError 表示无法识别的日期文本
type DateParseError struct {
	Raw string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("unrecognized date text %q", e.Raw)
}

// DateNormalizer 把各站点的日期文本（相对或绝对）转换为绝对时间
type DateNormalizer struct {
	Window time.Duration
}

func NewDateNormalizer(window time.Duration) *DateNormalizer {
	if window <= 0 {
		window = DefaultRecencyWindow
	}
	return &DateNormalizer{Window: window}
}

// IsRecent now - t < window；未来时间视为最新
func (d *DateNormalizer) IsRecent(t, now time.Time) bool {
	return now.Sub(t) < d.Window
}

// Normalize 无法解析时退回 now 并返回 estimated=true，调用方据此区分“确认新”与“假定新”
func (d *DateNormalizer) Normalize(raw string, now time.Time) (t time.Time, estimated bool) {
	t, err := d.Parse(raw, now)
	if err != nil {
		log.Printf("warn: %v, assume now", err)
		return now, true
	}
	return t, false
}

var (
	relativeRe = regexp.MustCompile(`^(\d+|an?|one)\s*(seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|wks?|w|months?|mos?|years?|yrs?|y)\s+ago$`)
	// 3:04 PM / 3:04 p.m.，其他时区缩写忽略
	clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*(am|pm)(?:\s+[a-z]{2,4})?$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// 美股站点的 ET 随夏令时在 -4/-5 之间切换
var eastern = loadLocation("America/New_York", time.FixedZone("EST", -5*3600))

func loadLocation(name string, fallback *time.Location) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("warn: load location %s: %v", name, err)
		return fallback
	}
	return loc
}

// zoneLocation 识别页面上常见的时区缩写，未知缩写返回 nil
func zoneLocation(abbr string) *time.Location {
	switch strings.ToUpper(abbr) {
	case "ET", "EST", "EDT":
		return eastern
	case "UTC", "GMT":
		return time.UTC
	}
	return nil
}

// splitZone 去掉末尾的时区缩写并返回对应时区；没有可识别的缩写时返回 def
func splitZone(s string, def *time.Location) (string, *time.Location) {
	i := strings.LastIndex(s, " ")
	if i < 0 {
		return s, def
	}
	if loc := zoneLocation(s[i+1:]); loc != nil {
		return strings.TrimSpace(s[:i]), loc
	}
	return s, def
}

var absoluteLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	// RFC1123 去掉 GMT 之后
	"Mon, 2 Jan 2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan. 2, 2006 3:04 PM",
	"Jan. 2, 2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// Parse 解析日期文本；返回 *DateParseError 表示无法识别
func (d *DateNormalizer) Parse(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	// "Reuters • 3 hours ago" 只取最后一段
	if i := strings.LastIndex(s, "•"); i >= 0 {
		s = strings.TrimSpace(s[i+len("•"):])
	}
	s = spaceRe.ReplaceAllString(s, " ")
	if s == "" {
		return time.Time{}, &DateParseError{Raw: raw}
	}

	lower := strings.ToLower(s)
	switch lower {
	case "just now", "now", "today", "moments ago":
		return now, nil
	case "yesterday":
		return now.Add(-24 * time.Hour), nil
	case "last week":
		return now.Add(-7 * 24 * time.Hour), nil
	case "last month":
		return now.Add(-30 * 24 * time.Hour), nil
	case "last year":
		return now.Add(-365 * 24 * time.Hour), nil
	}

	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n := 1
		if m[1] != "a" && m[1] != "an" && m[1] != "one" {
			v, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, &DateParseError{Raw: raw}
			}
			n = v
		}
		return now.Add(-time.Duration(n) * unitDuration(m[2])), nil
	}

	clock, loc := splitZone(normalizeMeridiem(lower), now.Location())
	if m := clockRe.FindStringSubmatch(clock); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 12 || minute > 59 {
			return time.Time{}, &DateParseError{Raw: raw}
		}
		hour %= 12
		if m[3] == "pm" {
			hour += 12
		}
		// 只有时刻时默认是该时区的今天；若晚于当前则是昨天发布的
		local := now.In(loc)
		t := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if t.After(now) {
			t = t.AddDate(0, 0, -1)
		}
		return t, nil
	}

	abs, loc := splitZone(normalizeAbsolute(s), now.Location())
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, abs, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &DateParseError{Raw: raw}
}

// unitDuration 一个月按 30 天、一年按 365 天计
func unitDuration(unit string) time.Duration {
	switch {
	case strings.HasPrefix(unit, "mo"):
		return 30 * 24 * time.Hour
	case unit[0] == 's':
		return time.Second
	case unit[0] == 'm':
		return time.Minute
	case unit[0] == 'h':
		return time.Hour
	case unit[0] == 'd':
		return 24 * time.Hour
	case unit[0] == 'y':
		return 365 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

func normalizeMeridiem(s string) string {
	s = strings.ReplaceAll(s, "a.m.", "am")
	s = strings.ReplaceAll(s, "p.m.", "pm")
	return s
}

// normalizeAbsolute 处理 "Oct. 15, 2024 at 10:32 a.m. ET" 这类写法，时区缩写留给 splitZone
func normalizeAbsolute(s string) string {
	s = strings.Replace(s, " at ", " ", 1)
	s = strings.ReplaceAll(s, "a.m.", "AM")
	s = strings.ReplaceAll(s, "p.m.", "PM")
	s = strings.ReplaceAll(s, " am", " AM")
	s = strings.ReplaceAll(s, " pm", " PM")
	// "Sept." 不是 Go 认识的缩写
	s = strings.Replace(s, "Sept.", "Sep.", 1)
	return strings.TrimSpace(s)
}
