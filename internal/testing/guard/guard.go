package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AUTHSVC_TEST_MODE") == "" {
			_ = os.Setenv("AUTHSVC_TEST_MODE", "1")
		}
	})
}
