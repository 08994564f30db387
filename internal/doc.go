// Package internal contains the core implementation packages for pagelet.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - markup: Markup parsing and server script extraction
//   - script: Script runtime, request object and redirect signal
//   - loader: Temp unit lifecycle around script loading
//   - renderer: Handlebars template compilation
//   - page: Page entries and the page compiler
//   - pagecache: Path-keyed page cache with singleflight compilation
//   - server: Request hook, admin endpoints and HTTP lifecycle
//   - middleware: Logging, recovery, security headers and compression
//   - scanner: Document root discovery for the list command
//   - config, logging, errors, validation, version: Ambient support
//   - testutils: Shared test fixtures
//
// # Request Flow
//
// The server hook resolves a request to a source path, takes the page entry
// from the cache or compiles it (parse, extract, template, load), runs the
// entry's script with the request and either renders the template with the
// returned data or redirects.
package internal
