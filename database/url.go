package database

import (
	"fmt"
	"net/url"
	"strings"
)

// ConstructDatabaseURL points baseURL at databaseName and defaults sslmode to
// disable. An empty databaseName returns baseURL untouched so a fully
// qualified DATABASE_URL keeps working on its own.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || parsed.Scheme == "" {
		// Not a URL we can reason about (e.g. a keyword/value DSN); append naively
		return fmt.Sprintf("%s/%s", strings.TrimRight(baseURL, "/"), databaseName)
	}

	parsed.Path = "/" + databaseName

	query := parsed.Query()
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	parsed.RawQuery = query.Encode()

	return parsed.String()
}
