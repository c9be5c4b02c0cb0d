package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("hello %d", 42)
	if got != "hello 42" {
		t.Errorf("logged %q, want %q", got, "hello 42")
	}

	// nil installs a no-op sink rather than a nil function.
	SetLogger(nil)
	Logf("must not panic")
}
