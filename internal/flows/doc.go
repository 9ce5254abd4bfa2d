// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunChangePassword,
// RunValidate) accepts a typed dependency struct and returns a result carrying
// a failure kind. The Engine maps failure kinds to public errors, metrics and
// log lines, which keeps the Engine thin and the flows testable with fakes.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import blogAuth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
