package patcher

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

const vlessScheme = "vless://"

// Subscription is a tagged remote endpoint which yields one proxy URL when fetched.
type Subscription struct {
	Tag string `yaml:"tag"`
	URL string `yaml:"url"`
}

func NewSubscription(tag, addr string) (Subscription, error) {
	if len(tag) <= 0 {
		return Subscription{}, fmt.Errorf("%w: empty tag for %q", ErrMalformedArgument, addr)
	}
	if !strings.HasPrefix(addr, "http") {
		return Subscription{}, fmt.Errorf("%w: %s. URL must start with http:// or https://", ErrInvalidURLScheme, addr)
	}
	return Subscription{Tag: tag, URL: addr}, nil
}

// ParseSubscriptionArgs turns "tag=url" arguments into subscriptions.
// The preset subscriptions come first and share the tag namespace with args.
func ParseSubscriptionArgs(preset []Subscription, args []string) ([]Subscription, error) {
	result := make([]Subscription, 0, len(preset)+len(args))
	tags := make(map[string]struct{}, len(preset)+len(args))
	add := func(tag, addr string) error {
		if _, ok := tags[tag]; ok {
			return fmt.Errorf("%w: tag %q is specified more than once, use unique names", ErrDuplicateTag, tag)
		}
		tags[tag] = struct{}{}
		s, err := NewSubscription(tag, addr)
		if err != nil {
			return err
		}
		result = append(result, s)
		return nil
	}

	for _, s := range preset {
		if err := add(s.Tag, s.URL); err != nil {
			return nil, err
		}
	}
	for _, arg := range args {
		tag, addr, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q, expected tag=url", ErrMalformedArgument, arg)
		}
		if err := add(tag, addr); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ExtractProxyURL returns the first vless:// line of a subscription body.
// The body may be plain text or standard base64 of it.
func ExtractProxyURL(text string) (string, error) {
	text = strings.TrimSpace(text)
	if decoded, ok := decodeBase64Text(text); ok {
		text = strings.TrimSpace(decoded)
	}

	line, ok := lo.Find(splitLines(text), func(line string) bool {
		return strings.HasPrefix(line, vlessScheme)
	})
	if !ok {
		return "", fmt.Errorf("%w: subscription response has no line in %s format", ErrNoProxyURLFound, vlessScheme)
	}
	return line, nil
}

// decodeBase64Text probes s as padded standard base64. The second result is false
// when s is not base64 or does not decode to UTF-8 text. Non-zero trailing
// bits before the padding are tolerated.
func decodeBase64Text(s string) (string, bool) {
	// the decoder silently skips CR and LF, a valid payload must not carry them
	if strings.ContainsAny(s, "\r\n") {
		return "", false
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// splitLines splits on any line ending, trims every line and drops the empty ones.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return lo.FilterMap(strings.Split(s, "\n"), func(line string, _ int) (string, bool) {
		line = strings.TrimSpace(line)
		return line, len(line) > 0
	})
}
