//go:build tools

// Package lint pins the linters used on go-modrt in their own module, so
// the runtime go.mod lists only what the library and CLI import.
//
// From the repository root:
//
//	go run -modfile=tools/lint/go.mod github.com/golangci/golangci-lint/v2/cmd/golangci-lint run ./...
//	go run -modfile=tools/lint/go.mod honnef.co/go/tools/cmd/staticcheck ./...
package lint
