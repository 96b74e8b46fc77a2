//go:build !nodebug

package debug

import "fmt"

const enabled = true

func assertFailed(args []any) {
	panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
}

func assertFailedf(format string, args []any) {
	panic(fmt.Sprintf("assertion failed: "+format, args...))
}
