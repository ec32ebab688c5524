package auth

import "strings"

// Client pages. A page name is the last segment of a location path.
const (
	PageLogin    = "login"
	PageCalendar = "calendar"
)

// Navigator is the client's navigation surface. CurrentPage returns the
// page currently shown; Navigate switches to another page.
type Navigator interface {
	CurrentPage() string
	Navigate(page string)
}

// PageFromPath extracts the page name from a location path. An empty last
// segment means the main calendar page.
func PageFromPath(path string) string {
	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	if last == "" {
		return PageCalendar
	}
	return last
}

// NavigationTarget is the single navigation policy tied to auth state:
// signed-in users on the login page go to the calendar, signed-out users
// anywhere else go to the login page. The second return is false when no
// navigation is needed.
func NavigationTarget(signedIn bool, currentPage string) (string, bool) {
	if signedIn {
		if currentPage == PageLogin {
			return PageCalendar, true
		}
		return "", false
	}
	if currentPage != PageLogin {
		return PageLogin, true
	}
	return "", false
}
