package slackbot

import (
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const userCacheTTL = 5 * time.Minute

// userDirectory maps tracker display names to Slack user IDs.
type userDirectory struct {
	api *slack.Client

	mu        sync.Mutex
	users     []slack.User
	fetchedAt time.Time
	now       func() time.Time
}

func newUserDirectory(api *slack.Client) *userDirectory {
	return &userDirectory{api: api, now: time.Now}
}

func (d *userDirectory) cachedUsers() ([]slack.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.users != nil && d.now().Sub(d.fetchedAt) < userCacheTTL {
		return d.users, nil
	}

	users, err := d.api.GetUsers()
	if err != nil {
		return nil, err
	}
	d.users = users
	d.fetchedAt = d.now()
	return users, nil
}

// resolve returns Slack IDs for names, plus the names it could not match.
// An exact match on username, real name or display name wins; otherwise a
// token-subset match is accepted when it is unambiguous.
func (d *userDirectory) resolve(names []string) (map[string]string, []string, error) {
	names = uniqueStrings(names)
	if len(names) == 0 {
		return map[string]string{}, nil, nil
	}
	users, err := d.cachedUsers()
	if err != nil {
		log.Printf("resolve users: get users error: %v", err)
		return map[string]string{}, names, err
	}

	nameToID := make(map[string]string)
	for _, user := range users {
		if user.Deleted || user.IsBot {
			continue
		}
		addName := func(n string) {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" {
				return
			}
			if _, exists := nameToID[n]; !exists {
				nameToID[n] = user.ID
			}
		}
		addName(user.Name)
		addName(user.RealName)
		addName(user.Profile.DisplayName)
	}

	resolved := make(map[string]string, len(names))
	var unresolved []string
	for _, name := range names {
		if id, ok := nameToID[strings.ToLower(strings.TrimSpace(name))]; ok {
			resolved[name] = id
			continue
		}
		if id, ok := fuzzyMatch(users, name); ok {
			resolved[name] = id
			continue
		}
		unresolved = append(unresolved, name)
	}

	log.Printf("resolve users: resolved=%d unresolved=%d", len(resolved), len(unresolved))
	return resolved, unresolved, nil
}

func fuzzyMatch(users []slack.User, name string) (string, bool) {
	var match string
	for _, user := range users {
		if user.Deleted || user.IsBot {
			continue
		}
		if nameMatches(name, user.RealName) || nameMatches(name, user.Profile.DisplayName) {
			if match != "" && match != user.ID {
				return "", false
			}
			match = user.ID
		}
	}
	return match, match != ""
}

func uniqueStrings(vals []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

var parenPattern = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)

func normalizeNameTokens(s string) []string {
	if s == "" {
		return nil
	}
	s = parenPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	parts := strings.Fields(b.String())
	if len(parts) == 0 {
		return nil
	}
	return parts
}

// nameMatches accepts either token set being a subset of the other, so
// "Ana" matches "Ana Lima".
func nameMatches(owner, candidate string) bool {
	ownerTokens := normalizeNameTokens(owner)
	candTokens := normalizeNameTokens(candidate)
	if len(ownerTokens) == 0 || len(candTokens) == 0 {
		return false
	}
	return allIn(ownerTokens, candTokens) || allIn(candTokens, ownerTokens)
}

func allIn(needles, haystack []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, t := range haystack {
		set[t] = true
	}
	for _, t := range needles {
		if !set[t] {
			return false
		}
	}
	return true
}
