package futexsync

import "fmt"

const envname = "FUTEXSYNC"

// Returns "{envname}_{name}".
//
// envname is FUTEXSYNC
func GetEnvKey(name string) string {
	return fmt.Sprintf("%s_%s", envname, name)
}

// Returns "{key}={value}".
//
// key is the returned value from GetEnvKey function
// with name as argument
func GetEnvPair(name, value string) string {
	return fmt.Sprintf("%s=%s", GetEnvKey(name), value)
}
