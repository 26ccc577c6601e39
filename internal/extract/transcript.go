package extract

import (
	"strings"

	tiktok "github.com/RavensCloud/tiktok-harvest"
)

// SelectTrack picks the English subtitle track if there is one, else the
// first track. ok is false when there are no tracks.
func SelectTrack(tracks []tiktok.SubtitleTrack) (track tiktok.SubtitleTrack, ok bool) {
	if len(tracks) == 0 {
		return tiktok.SubtitleTrack{}, false
	}
	for _, t := range tracks {
		if isEnglish(t) {
			return t, true
		}
	}
	return tracks[0], true
}

func isEnglish(t tiktok.SubtitleTrack) bool {
	code := strings.ToLower(t.LanguageCodeName)
	if strings.HasPrefix(code, "english") {
		return true
	}
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code == "en" || code == "eng"
}

// CleanTranscript turns a WebVTT payload into plain text: the header, cue
// timing lines, cue numbers and blank lines are dropped and the remaining
// lines are joined with single spaces.
func CleanTranscript(payload string) string {
	var parts []string
	for line := range strings.Lines(payload) {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "WEBVTT"):
		case strings.Contains(line, "-->"):
		case isCueNumber(line):
		default:
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func isCueNumber(line string) bool {
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
