package browser

import "fmt"

// StealthLevel selects how a page is acquired.
type StealthLevel int

const (
	LevelHTTP     StealthLevel = 0 // plain GET, no browser
	LevelHeadless StealthLevel = 1 // headless Chrome with stealth scripts
	LevelHeadful  StealthLevel = 2 // headed Chrome on an Xvfb display
)

func (l StealthLevel) String() string {
	switch l {
	case LevelHTTP:
		return "http"
	case LevelHeadless:
		return "headless"
	case LevelHeadful:
		return "headful"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel reads a page's stealth_level setting. "auto" returns
// auto=true: try HTTP first and escalate when the response is not enough.
func ParseLevel(s string) (level StealthLevel, auto bool, err error) {
	switch s {
	case "0":
		return LevelHTTP, false, nil
	case "1":
		return LevelHeadless, false, nil
	case "2":
		return LevelHeadful, false, nil
	case "auto", "":
		return LevelHTTP, true, nil
	}
	return 0, false, fmt.Errorf("browser: bad stealth level %q", s)
}

// ParseMode maps the browser-wide stealth setting (headless | headful).
func ParseMode(s string) (StealthLevel, error) {
	switch s {
	case "headless", "":
		return LevelHeadless, nil
	case "headful":
		return LevelHeadful, nil
	}
	return 0, fmt.Errorf("browser: bad stealth mode %q", s)
}
