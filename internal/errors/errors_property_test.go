//go:build property

package errors

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestErrorCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent addition keeps one error per path", prop.ForAll(
		func(goroutines int, perGoroutine int) bool {
			ec := NewErrorCollector()

			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < perGoroutine; i++ {
						ec.Add(fmt.Sprintf("page-%d-%d.html", g, i), fmt.Errorf("failure %d", i))
					}
				}(g)
			}
			wg.Wait()

			return ec.Len() == goroutines*perGoroutine && ec.HasErrors()
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 50),
	))

	properties.Property("clear empties the collector", prop.ForAll(
		func(paths []string) bool {
			ec := NewErrorCollector()
			for _, p := range paths {
				ec.Add(p, fmt.Errorf("bad"))
			}
			ec.Clear()
			return !ec.HasErrors() && ec.Err() == nil
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestPublicMessageProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("I/O causes never reach the client", prop.ForAll(
		func(secret string) bool {
			err := NewIOError(ErrCodeReadSource, "failed to read page source", fmt.Errorf("open /srv/%s", secret))
			return PublicMessage(err) == http.StatusText(http.StatusInternalServerError)
		},
		gen.Identifier(),
	))

	properties.Property("script failures keep their fixed message", prop.ForAll(
		func(detail string) bool {
			err := NewExecError(ErrCodeScriptFailed, MsgScript, fmt.Errorf("%s", detail))
			return PublicMessage(err) == MsgScript && StatusOf(err) == http.StatusInternalServerError
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
