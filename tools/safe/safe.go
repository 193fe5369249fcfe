package safe

import (
	"PolyChat/logger"
)

// Go starts a goroutine that recovers from panic so a broken handler cannot
// take down the relay process.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] %s panic recovered: %v", name, r)
			}
		}()
		f()
	}()
}
