// Package e2e holds the business UI suites: market orders, stop orders and
// position management against a live AQX Trader deployment.
//
// They are behind the e2e build tag and skip without credentials:
//
//	TEST_ENV=staging AQX_USERNAME=... AQX_PASSWORD=... go test -tags e2e ./e2e/
//
// Parallel runs use separate processes, each with its own E2E_WORKER id.
package e2e
