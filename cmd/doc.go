// # Available Commands
//
//   - serve: Start the HTTP server for a document root
//   - render: Render one page through the serving pipeline and print it
//   - list: List the pages under the document root
//   - version: Show build and engine versions
//
// # Command Examples
//
//	// Serve ./site on port 8080 without the page cache
//	pagelet serve --root ./site --port 8080 --cache=false
//
//	// Render a page with a cookie
//	pagelet render -H "Cookie: session=1" /account/
//
//	// List pages as YAML
//	pagelet list --format yaml
//
// # Error Handling
//
// Commands return errors to main, which prints them and exits non-zero.
// Configuration errors stop a command before any page is touched;
// configuration warnings are logged and the command carries on.
package cmd
