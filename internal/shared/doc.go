// Package shared holds code used across packages that belongs to no single
// domain.
//
// testutil provides the slog capture handler and on-disk fixtures (temp data
// directories, tidy ENIGH tables) used by the service, app and pipeline tests.
package shared
