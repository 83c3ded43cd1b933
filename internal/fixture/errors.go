package fixture

import "fmt"

type badQueryError struct {
	key, val string
}

func (e *badQueryError) Error() string {
	return fmt.Sprintf("bad query parameter %s=%q", e.key, e.val)
}

func errBadQuery(key, val string) error { return &badQueryError{key: key, val: val} }
