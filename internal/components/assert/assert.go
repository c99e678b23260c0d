// assert panics on programmer errors, it is used to check constructor arguments.
package assert

import "fmt"

func NotNil(name string, value any) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", name))
	}
}

func NotEmptyStr(name, str string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be a non-empty string", name))
	}
}
